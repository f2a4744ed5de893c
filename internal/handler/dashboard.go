package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/service"
)

// DashboardHandler serves role dashboards, earnings and the earnings toggle.
type DashboardHandler struct {
	dashboards *service.DashboardService
	earnings   *service.EarningsService
	logger     *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboards *service.DashboardService, earnings *service.EarningsService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboards: dashboards,
		earnings:   earnings,
		logger:     logger.With("handler", "dashboard"),
	}
}

// Dashboard handles GET /api/dashboard.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.dashboards.For(r.Context(), principal(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Earnings handles GET /api/earnings. A disabled toggle is not an error.
func (h *DashboardHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	e, err := h.earnings.Earnings(r.Context(), principal(r))
	if errors.Is(err, service.ErrEarningsDisabled) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetEarningsSetting handles GET /api/admin/settings/earnings.
func (h *DashboardHandler) GetEarningsSetting(w http.ResponseWriter, r *http.Request) {
	v, err := h.earnings.GetShowEarnings(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"show_earnings": v})
}

// SetEarningsSetting handles PUT /api/admin/settings/earnings.
func (h *DashboardHandler) SetEarningsSetting(w http.ResponseWriter, r *http.Request) {
	var req dto.EarningsSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.earnings.SetShowEarnings(r.Context(), req.ShowEarnings); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "show_earnings": req.ShowEarnings})
}
