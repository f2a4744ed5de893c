package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/service"
)

// maxCSVUpload caps bulk CSV uploads.
const maxCSVUpload = 10 << 20

// ScriptHandler serves scripts, bulk imports and requirements.
type ScriptHandler struct {
	scripts      *service.ScriptService
	requirements *service.RequirementService
	submissions  *service.SubmissionService
	logger       *slog.Logger
}

// NewScriptHandler creates a new ScriptHandler.
func NewScriptHandler(scripts *service.ScriptService, requirements *service.RequirementService,
	submissions *service.SubmissionService, logger *slog.Logger) *ScriptHandler {
	return &ScriptHandler{
		scripts:      scripts,
		requirements: requirements,
		submissions:  submissions,
		logger:       logger.With("handler", "script"),
	}
}

// Search handles GET /api/scripts?q=&language=&page=&page_size=.
func (h *ScriptHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.scripts.Search(r.Context(), service.SearchInput{
		Query:    q.Get("q"),
		Language: q.Get("language"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetActive handles GET /api/scripts/{id}.
func (h *ScriptHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	script, err := h.scripts.GetActive(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

// MySubmissions handles GET /api/scripts/{id}/my-submissions.
func (h *ScriptHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := h.submissions.ListUserScriptSubmissions(r.Context(), principal(r), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"script_id": id, "submissions": items})
}

// List handles GET /api/admin/scripts.
func (h *ScriptHandler) List(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.scripts.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

// Get handles GET /api/admin/scripts/{id}, including inactive scripts.
func (h *ScriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	script, err := h.scripts.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

// Create handles POST /api/admin/scripts.
func (h *ScriptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ScriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	script, err := h.scripts.Create(r.Context(), scriptInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, script)
}

// Update handles PUT /api/admin/scripts/{id}.
func (h *ScriptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.ScriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	script, err := h.scripts.Update(r.Context(), id, scriptInput(req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

// Delete handles DELETE /api/admin/scripts/{id}.
func (h *ScriptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.scripts.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkDelete handles POST /api/admin/scripts/bulk-delete.
func (h *ScriptHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.scripts.BulkDelete(r.Context(), req.ScriptIDs)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkUpload handles POST /api/admin/scripts/bulk-upload with multipart
// fields csvFile and language.
func (h *ScriptHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUpload)
	if err := r.ParseMultipartForm(maxCSVUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "CSV file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Expected multipart form data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("csvFile")
	if err != nil {
		writeFieldError(w, "csvFile", "No CSV file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeFieldError(w, "csvFile", "No file selected")
		return
	}

	result, err := h.scripts.ImportCSV(r.Context(), file, r.FormValue("language"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkText handles POST /api/admin/scripts/bulk-text.
func (h *ScriptHandler) BulkText(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.scripts.ImportText(r.Context(), req.ScriptText, req.Language)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Submissions handles GET /api/admin/scripts/{id}/submissions.
func (h *ScriptHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.submissions.ListForScript(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Requirements handles GET /api/admin/scripts/{id}/requirements.
func (h *ScriptHandler) Requirements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reqs, err := h.requirements.List(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"script_id": id, "requirements": reqs})
}

// ReplaceRequirements handles POST /api/admin/scripts/{id}/requirements.
func (h *ScriptHandler) ReplaceRequirements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.RequirementsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inputs := make([]service.RequirementInput, 0, len(req.Requirements))
	for _, rr := range req.Requirements {
		inputs = append(inputs, service.RequirementInput{
			Gender:      rr.Gender,
			AgeGroup:    rr.AgeGroup,
			TargetTotal: rr.TargetTotal,
			Enabled:     rr.Enabled,
		})
	}

	reqs, err := h.requirements.Replace(r.Context(), id, inputs)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requirements": reqs})
}

// Progress handles GET /api/scripts/{id}/progress.
func (h *ScriptHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	progress, err := h.requirements.Progress(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func scriptInput(req dto.ScriptRequest) service.ScriptInput {
	return service.ScriptInput{
		Title:          req.Title,
		Content:        req.Content,
		Category:       req.Category,
		Difficulty:     req.Difficulty,
		TargetDuration: req.TargetDuration,
		Language:       req.Language,
		IsActive:       req.IsActive,
	}
}
