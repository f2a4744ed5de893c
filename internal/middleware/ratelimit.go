package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger *slog.Logger
	Cache  *cache.Cache
	// Login attempts per minute per client IP. Zero disables the limit.
	LoginPerMinute int
	// Audio uploads per minute per user. Zero disables the limit.
	UploadsPerMinute int
}

// RateLimitLogin throttles login attempts per client IP.
func RateLimitLogin(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.LoginPerMinute <= 0 || cfg.Cache == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)
			result, err := cfg.Cache.CheckLoginRateLimit(r.Context(), ip, cfg.LoginPerMinute)
			if err != nil {
				cfg.Logger.Error("login rate limit check failed",
					slog.String("error", err.Error()),
				)
				// Fail open
				next.ServeHTTP(w, r)
				return
			}

			if !allow(w, r, cfg.Logger, result, "login") {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUploads throttles audio uploads per user.
// Must be applied after Session.
func RateLimitUploads(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if cfg.UploadsPerMinute <= 0 || cfg.Cache == nil || p == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Cache.CheckUploadRateLimit(r.Context(), p.UserID, cfg.UploadsPerMinute)
			if err != nil {
				cfg.Logger.Error("upload rate limit check failed",
					slog.String("error", err.Error()),
					slog.Int64("user_id", p.UserID),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allow(w, r, cfg.Logger, result, "upload") {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow sets the rate limit headers and writes 429 when the bucket is empty.
func allow(w http.ResponseWriter, r *http.Request, logger *slog.Logger, result *cache.RateLimitResult, kind string) bool {
	setRateLimitHeaders(w, result.Limit, result.Remaining, result.ResetAt)
	if result.Allowed {
		return true
	}

	retry := retryAfterSeconds(result.RetryAfter)
	logger.Warn("rate limit exceeded",
		slog.String("type", kind),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.Int("retry_after_seconds", retry),
		slog.String("request_id", GetRequestID(r.Context())),
	)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Rate limit exceeded. Retry after "+strconv.Itoa(retry)+" seconds.")
	return false
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int64, resetAt time.Time) {
	if limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// getClientIP extracts the client IP from the request.
// X-Forwarded-For and X-Real-IP are honoured for proxied requests.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
