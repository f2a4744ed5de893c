package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/webhook"
)

// WebhookHandler manages outbound webhook endpoints.
type WebhookHandler struct {
	svc    *webhook.EndpointService
	logger *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(svc *webhook.EndpointService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger.With("handler", "webhook")}
}

// WebhookCreatedResponse includes the signing secret, shown exactly once.
type WebhookCreatedResponse struct {
	*model.WebhookEndpoint
	Secret string `json:"secret"`
}

// Create handles POST /api/admin/webhooks.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.WebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	endpoint, err := h.svc.Create(r.Context(), principal(r).UserID, webhook.CreateEndpointInput{
		TargetURL:   req.TargetURL,
		EventTypes:  req.EventTypes,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, WebhookCreatedResponse{WebhookEndpoint: endpoint, Secret: endpoint.Secret})
}

// List handles GET /api/admin/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.svc.List(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if endpoints == nil {
		endpoints = []*model.WebhookEndpoint{}
	}
	writeJSON(w, http.StatusOK, endpoints)
}

// Delete handles DELETE /api/admin/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
