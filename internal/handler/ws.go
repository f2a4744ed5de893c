package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/voicescript/collector/internal/events"
)

// ReviewFeedHandler upgrades /api/ws/reviews and streams review queue events.
type ReviewFeedHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewReviewFeedHandler creates a feed handler. allowOrigin decides the
// upgrade's Origin check.
func NewReviewFeedHandler(hub *events.Hub, allowOrigin func(string) bool, logger *slog.Logger) *ReviewFeedHandler {
	return &ReviewFeedHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowOrigin(r.Header.Get("Origin"))
			},
		},
		logger: logger.With("handler", "ws"),
	}
}

// Serve handles GET /api/ws/reviews and blocks until the client disconnects.
func (h *ReviewFeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("ws_upgrade_failed", "error", err, "user_id", p.UserID)
		return
	}

	h.logger.Info("ws_connected", "user_id", p.UserID, "role", p.Role)
	if err := events.NewClient(h.hub, conn, p).Serve(r.Context()); err != nil {
		h.logger.Info("ws_closed", "user_id", p.UserID, "error", err)
		return
	}
	h.logger.Info("ws_closed", "user_id", p.UserID)
}
