package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// FallbackQueryParam carries the fallback token for webviews that cannot
// hold cookies at all.
const FallbackQueryParam = "auth_token"

// UserLookup loads the current state of a user.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger *slog.Logger
	Cache  *cache.Cache
	// Signer verifies fallback tokens. Required when FallbackEnabled.
	Signer          *auth.Signer
	FallbackEnabled bool
	// Users, when set, rejects fallback tokens whose user was deleted or
	// whose role changed after the token was issued.
	Users UserLookup
}

// Session resolves the caller from the session cookie or bearer token and
// stores the principal in the request context. Requests without a valid
// session get 401.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolvePrincipal(r, cfg)
			if err != nil {
				cfg.Logger.Error("session lookup failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session lookup failed")
				return
			}
			if p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession attaches the principal when one resolves but never rejects.
func OptionalSession(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolvePrincipal(r, cfg)
			if err != nil {
				cfg.Logger.Warn("optional session lookup failed", slog.String("error", err.Error()))
			}
			if p != nil {
				r = r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolvePrincipal returns (nil, nil) when the request carries no usable
// credentials. Only cache failures are reported as errors.
func resolvePrincipal(r *http.Request, cfg SessionConfig) (*model.Principal, error) {
	if token := extractSessionToken(r); token != "" && cfg.Cache != nil {
		p, err := cfg.Cache.GetSession(r.Context(), auth.HashToken(token))
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, cache.ErrSessionNotFound):
			return nil, err
		}
	}

	if !cfg.FallbackEnabled || cfg.Signer == nil {
		return nil, nil
	}
	fallback := extractFallbackToken(r)
	if fallback == "" {
		return nil, nil
	}
	p, err := cfg.Signer.VerifyFallback(fallback)
	if err != nil {
		cfg.Logger.Debug("fallback token rejected", slog.String("error", err.Error()))
		return nil, nil
	}
	if cfg.Users == nil {
		return p, nil
	}

	user, err := cfg.Users.GetUserByID(r.Context(), p.UserID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		cfg.Logger.Debug("fallback token for deleted user", slog.Int64("user_id", p.UserID))
		return nil, nil
	case err != nil:
		return nil, err
	case user.Role != p.Role:
		cfg.Logger.Debug("fallback token role is stale", slog.Int64("user_id", p.UserID))
		return nil, nil
	}
	return model.NewPrincipal(user), nil
}

// extractSessionToken prefers the session cookie over a bearer header.
func extractSessionToken(r *http.Request) string {
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func extractFallbackToken(r *http.Request) string {
	if c, err := r.Cookie(auth.FallbackCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(FallbackQueryParam)
}
