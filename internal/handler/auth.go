package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/handler/dto"
	"github.com/voicescript/collector/internal/service"
)

// CookieConfig controls the attributes of issued cookies.
type CookieConfig struct {
	Secure bool
}

// AuthHandler handles sign-in, sign-out and identity endpoints.
type AuthHandler struct {
	svc     *service.AuthService
	users   *service.UserService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, users *service.UserService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:     svc,
		users:   users,
		cookies: cookies,
		logger:  logger.With("handler", "auth"),
	}
}

// LoginResponse is returned by every successful sign-in.
type LoginResponse struct {
	Success   bool              `json:"success"`
	User      *dto.UserResponse `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Redirect  string            `json:"redirect"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.completeLogin(w, result)
}

// Demo handles POST /api/auth/demo?demo={role}.
func (h *AuthHandler) Demo(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.DemoLogin(r.Context(), r.URL.Query().Get("demo"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.completeLogin(w, result)
}

// Webview handles POST /api/auth/webview?email=.
func (h *AuthHandler) Webview(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.WebviewLogin(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.completeLogin(w, result)
}

// Logout handles POST /api/auth/logout. It always clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		if err := h.svc.Logout(r.Context(), p); err != nil {
			h.logger.Warn("logout_failed", "user_id", p.UserID, "error", err)
		}
	}
	h.clearCookie(w, auth.SessionCookieName)
	h.clearCookie(w, auth.FallbackCookieName)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Logged out"})
}

// Google handles GET /api/auth/google by redirecting to the consent screen.
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	target, state, err := h.svc.GoogleAuthURL()
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	http.SetCookie(w, h.stateCookie(state, int(auth.StateTTL.Seconds())))
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback and redirects to the
// role's dashboard.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var bound string
	if c, err := r.Cookie(auth.StateCookieName); err == nil {
		bound = c.Value
	}
	http.SetCookie(w, h.stateCookie("", -1))

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "OAUTH_DENIED", "Google sign-in was cancelled")
		return
	}
	result, err := h.svc.GoogleCallback(r.Context(), q.Get("code"), q.Get("state"), bound)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	h.setSessionCookies(w, result)
	http.Redirect(w, r, result.RedirectPath, http.StatusFound)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	user, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      dto.NewUserResponse(user),
		"dashboard": service.DashboardPath(user.Role),
	})
}

func (h *AuthHandler) completeLogin(w http.ResponseWriter, result *service.LoginResult) {
	h.setSessionCookies(w, result)
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		User:      dto.NewUserResponse(result.User),
		Token:     result.SessionToken,
		ExpiresAt: result.ExpiresAt,
		Redirect:  result.RedirectPath,
	})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, result *service.LoginResult) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	http.SetCookie(w, h.cookie(auth.SessionCookieName, result.SessionToken, maxAge))
	if result.FallbackToken != "" {
		http.SetCookie(w, h.cookie(auth.FallbackCookieName, result.FallbackToken, int(auth.FallbackTTL.Seconds())))
	}
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, h.cookie(name, "", -1))
}

// stateCookie is scoped to the OAuth routes.
func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	c := h.cookie(auth.StateCookieName, value, maxAge)
	c.Path = "/api/auth/google"
	return c
}

func (h *AuthHandler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
