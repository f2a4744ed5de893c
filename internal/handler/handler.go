// Package handler provides the HTTP handlers of the collector API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
	"github.com/voicescript/collector/internal/service"
	"github.com/voicescript/collector/internal/webhook"
)

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

func writeFieldError(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
		Error: message,
		Code:  "VALIDATION_ERROR",
		Field: field,
	})
}

// decodeJSON reads and validates a JSON body into v. It writes the error
// response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is required")
		default:
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		}
		return false
	}
	if err := dto.Validate(v); err != nil {
		var fe *dto.FieldError
		if errors.As(err, &fe) {
			writeFieldError(w, fe.Field, fe.Field+" "+fe.Message)
			return false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return id, true
}

func principal(r *http.Request) *model.Principal {
	return auth.MustPrincipalFromContext(r.Context())
}

// handleServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		if verr.Field == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message)
			return
		}
		writeFieldError(w, verr.Field, verr.Message)
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "Invalid OAuth state")
	case errors.Is(err, service.ErrEmailUnverified):
		writeError(w, http.StatusForbidden, "EMAIL_UNVERIFIED", "Your Google email address is not verified")
	case errors.Is(err, auth.ErrOAuthExchange):
		writeError(w, http.StatusBadGateway, "OAUTH_FAILED", "Google sign-in failed")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this resource")
	case errors.Is(err, service.ErrUserExists), errors.Is(err, repository.ErrEmailExists):
		writeError(w, http.StatusBadRequest, "USER_EXISTS", "User already exists")
	case errors.Is(err, service.ErrCannotDeleteSelf):
		writeError(w, http.StatusBadRequest, "CANNOT_DELETE_SELF", "Cannot delete your own account")
	case errors.Is(err, service.ErrLanguageExists), errors.Is(err, repository.ErrLanguageExists):
		writeError(w, http.StatusBadRequest, "LANGUAGE_EXISTS", "Language code already exists")
	case errors.Is(err, service.ErrNotPending):
		writeError(w, http.StatusBadRequest, "NOT_PENDING", "Only pending submissions can be deleted")
	case errors.Is(err, service.ErrProfileIncomplete):
		writeError(w, http.StatusBadRequest, "PROFILE_INCOMPLETE", "User profile incomplete - gender and age group required")
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrScriptNotFound), errors.Is(err, repository.ErrScriptNotFound):
		writeError(w, http.StatusNotFound, "SCRIPT_NOT_FOUND", "Script not found")
	case errors.Is(err, service.ErrLanguageNotFound), errors.Is(err, repository.ErrLanguageNotFound):
		writeError(w, http.StatusNotFound, "LANGUAGE_NOT_FOUND", "Language not found")
	case errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, repository.ErrSubmissionNotFound):
		writeError(w, http.StatusNotFound, "SUBMISSION_NOT_FOUND", "Submission not found")
	case errors.Is(err, service.ErrAudioNotFound):
		writeError(w, http.StatusNotFound, "AUDIO_NOT_FOUND", "Audio file not found")
	case errors.Is(err, webhook.ErrEndpointNotFound):
		writeError(w, http.StatusNotFound, "WEBHOOK_NOT_FOUND", "Webhook endpoint not found")
	case errors.Is(err, webhook.ErrInvalidEventType), errors.Is(err, webhook.ErrNoEventTypes):
		writeFieldError(w, "event_types", err.Error())
	case isURLPolicyError(err):
		writeFieldError(w, "target_url", err.Error())
	case errors.Is(err, service.ErrDemoDisabled), errors.Is(err, service.ErrFallbackDisabled),
		errors.Is(err, service.ErrOAuthDisabled):
		writeError(w, http.StatusForbidden, "DISABLED", capitalize(err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		logger.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func isURLPolicyError(err error) bool {
	for _, target := range []error{
		webhook.ErrInvalidScheme,
		webhook.ErrPrivateIP,
		webhook.ErrLocalhostBlocked,
		webhook.ErrInvalidURL,
		webhook.ErrEmptyHost,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
