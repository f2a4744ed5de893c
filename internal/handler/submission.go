package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/service"
)

// SubmissionHandler serves recording, review and export endpoints.
type SubmissionHandler struct {
	submissions  *service.SubmissionService
	reviews      *service.ReviewService
	requirements *service.RequirementService
	export       *service.ExportService
	maxUpload    int64
	logger       *slog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler. maxUpload bounds
// multipart audio uploads in bytes.
func NewSubmissionHandler(submissions *service.SubmissionService, reviews *service.ReviewService,
	requirements *service.RequirementService, export *service.ExportService,
	maxUpload int64, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions:  submissions,
		reviews:      reviews,
		requirements: requirements,
		export:       export,
		maxUpload:    maxUpload,
		logger:       logger.With("handler", "submission"),
	}
}

// NextTask handles GET /api/recording/next?language=.
func (h *SubmissionHandler) NextTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.requirements.NextTask(r.Context(), principal(r).UserID, r.URL.Query().Get("language"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Submit handles POST /api/submissions.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.close()

	scriptID, ok := formID(w, r, "script_id")
	if !ok {
		return
	}
	duration, ok := formDuration(w, r)
	if !ok {
		return
	}

	sub, err := h.submissions.Submit(r.Context(), principal(r).UserID, service.SubmitInput{
		ScriptID:    scriptID,
		Language:    formLanguage(r),
		TextContent: r.FormValue("text_content"),
		Transcript:  r.FormValue("transcript"),
		Duration:    duration,
		Audio:       form.audio,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"submission_id": sub.ID,
		"submission":    sub,
	})
}

// FieldCollect handles POST /api/admin/field-collection.
func (h *SubmissionHandler) FieldCollect(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer form.close()

	scriptID, ok := formID(w, r, "script_id")
	if !ok {
		return
	}
	duration, ok := formDuration(w, r)
	if !ok {
		return
	}

	sub, err := h.submissions.FieldCollect(r.Context(), principal(r).UserID, service.FieldCollectInput{
		ScriptID:         scriptID,
		Language:         formLanguage(r),
		Transcript:       r.FormValue("transcript"),
		ProviderGender:   r.FormValue("provider_gender"),
		ProviderAgeGroup: r.FormValue("provider_age_group"),
		SpeakerName:      r.FormValue("speaker_name"),
		SpeakerLocation:  r.FormValue("speaker_location"),
		Duration:         duration,
		Audio:            form.audio,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"submission_id": sub.ID,
		"submission":    sub,
	})
}

// DeleteOwn handles DELETE /api/submissions/{id}.
func (h *SubmissionHandler) DeleteOwn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.submissions.DeleteOwn(r.Context(), principal(r).UserID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Submission deleted"})
}

// AdminDelete handles DELETE /api/admin/submissions/{id}.
func (h *SubmissionHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	deletedFile, err := h.submissions.AdminDelete(r.Context(), principal(r).UserID, id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Submission deleted",
		"deleted_file": deletedFile,
	})
}

// Transcript handles PUT /api/submissions/{id}/transcript.
func (h *SubmissionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.TranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissions.UpdateTranscript(r.Context(), principal(r), id, req.Transcript)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "submission": sub})
}

// Audio handles GET /api/submissions/{id}/audio.
func (h *SubmissionHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	file, err := h.submissions.OpenAudio(r.Context(), principal(r), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	// The security middleware sets no-store; audio may be cached privately.
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Type", file.ContentType)
	http.ServeFile(w, r, file.Path)
}

// Pending handles GET /api/reviews/pending.
func (h *SubmissionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	views, err := h.reviews.PendingQueue(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Review handles POST /api/submissions/{id}/review.
func (h *SubmissionHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.reviews.Review(r.Context(), principal(r).UserID, id, service.ReviewInput{
		Action:       req.Action,
		Notes:        req.Notes,
		QualityScore: req.QualityScore,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"submission": result.Submission,
		"billing":    result.Billing,
	})
}

// Export handles GET /api/admin/export?language=. Rows stream as CSV, so a
// failure after the first write only truncates the body.
func (h *SubmissionHandler) Export(w http.ResponseWriter, r *http.Request) {
	filename := service.ExportFilename(time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	rows, err := h.export.WriteCSV(r.Context(), w, r.URL.Query().Get("language"))
	if err != nil {
		h.logger.Error("export_failed", "error", err, "rows", rows)
		return
	}
	h.logger.Info("export_completed", "rows", rows, "filename", filename)
}

type uploadForm struct {
	form  *multipart.Form
	file  multipart.File
	audio *service.AudioUpload
}

func (f *uploadForm) close() {
	if f.file != nil {
		_ = f.file.Close()
	}
	if f.form != nil {
		_ = f.form.RemoveAll()
	}
}

// parseUpload reads a multipart form and its optional audio_file part.
func (h *SubmissionHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, bool) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Upload too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Expected multipart form data")
		return nil, false
	}

	f := &uploadForm{form: r.MultipartForm}
	file, header, err := r.FormFile("audio_file")
	switch {
	case err == nil:
		f.file = file
		f.audio = &service.AudioUpload{Filename: header.Filename, Body: file}
	case errors.Is(err, http.ErrMissingFile):
	default:
		f.close()
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Could not read audio file")
		return nil, false
	}
	return f, true
}

func formID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		writeFieldError(w, name, name+" is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeFieldError(w, name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func formDuration(w http.ResponseWriter, r *http.Request) (*float64, bool) {
	raw := strings.TrimSpace(r.FormValue("duration"))
	if raw == "" {
		return nil, true
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || d < 0 {
		writeFieldError(w, "duration", "duration must be a non-negative number")
		return nil, false
	}
	return &d, true
}

// formLanguage accepts both language and language_id.
func formLanguage(r *http.Request) string {
	if v := strings.TrimSpace(r.FormValue("language")); v != "" {
		return v
	}
	return strings.TrimSpace(r.FormValue("language_id"))
}
