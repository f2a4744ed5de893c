package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/service"
)

// LanguageHandler serves languages and their pricing.
type LanguageHandler struct {
	svc    *service.LanguageService
	logger *slog.Logger
}

// NewLanguageHandler creates a new LanguageHandler.
func NewLanguageHandler(svc *service.LanguageService, logger *slog.Logger) *LanguageHandler {
	return &LanguageHandler{svc: svc, logger: logger.With("handler", "language")}
}

// ListActive handles GET /api/languages.
func (h *LanguageHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	langs, err := h.svc.ListActive(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, langs)
}

// ListAll handles GET /api/admin/languages.
func (h *LanguageHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	langs, err := h.svc.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, langs)
}

// Get handles GET /api/admin/languages/{code}.
func (h *LanguageHandler) Get(w http.ResponseWriter, r *http.Request) {
	lang, err := h.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lang)
}

// Create handles POST /api/admin/languages.
func (h *LanguageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.LanguageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lang, err := h.svc.Create(r.Context(), languageInput(req.Code, req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lang)
}

// Update handles PUT /api/admin/languages/{code}.
func (h *LanguageHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.LanguageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "code")
	lang, err := h.svc.Update(r.Context(), code, languageInput(code, req))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lang)
}

// Pricing handles GET /api/pricing/{language}.
func (h *LanguageHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.GetPricing(r.Context(), chi.URLParam(r, "language"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// UpdatePricing handles PUT /api/admin/pricing/{language}.
func (h *LanguageHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req dto.PricingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code := chi.URLParam(r, "language")
	rate, err := h.svc.UpdatePricing(r.Context(), code, service.LanguageInput{
		Code:                      code,
		ProviderRatePerWord:       req.ProviderRatePerWord,
		ReviewerRatePerSubmission: req.ReviewerRatePerSubmission,
		Currency:                  req.Currency,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func languageInput(code string, req dto.LanguageRequest) service.LanguageInput {
	return service.LanguageInput{
		Code:                      code,
		Name:                      req.Name,
		NativeName:                req.NativeName,
		IsActive:                  req.IsActive,
		ProviderRatePerWord:       req.ProviderRatePerWord,
		ReviewerRatePerSubmission: req.ReviewerRatePerSubmission,
		Currency:                  req.Currency,
	}
}
