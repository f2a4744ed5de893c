package handler

import (
	"log/slog"
	"net/http"

	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/service"
)

// UserHandler serves admin user management and profile updates.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger.With("handler", "user")}
}

// List handles GET /api/admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserResponses(users))
}

// Create handles POST /api/admin/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Create(r.Context(), service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.Role(req.Role),
		Gender:    req.Gender,
		AgeGroup:  req.AgeGroup,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": dto.NewUserResponse(user)})
}

// Update handles PUT /api/admin/users/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Update(r.Context(), id, service.UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Gender:    req.Gender,
		AgeGroup:  req.AgeGroup,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": dto.NewUserResponse(user)})
}

// Delete handles DELETE /api/admin/users/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), principal(r), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "User deleted"})
}

// UpdateRole handles PUT /api/admin/users/{id}/role.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UpdateRole(r.Context(), id, model.Role(req.Role)); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Role updated to " + req.Role})
}

// Stats handles GET /api/admin/users/stats.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.RoleStats(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"providers": counts[model.RoleProvider],
		"reviewers": counts[model.RoleReviewer],
		"admins":    counts[model.RoleAdmin],
	})
}

// Profile handles PUT /api/profile.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), principal(r).UserID, service.UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Gender:    req.Gender,
		AgeGroup:  req.AgeGroup,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": dto.NewUserResponse(user)})
}
