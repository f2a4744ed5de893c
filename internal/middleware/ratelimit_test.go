package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voicescript/collector/internal/cache"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded first hop", remoteAddr: "10.0.0.1:5555", xff: "203.0.113.9, 10.0.0.2", want: "203.0.113.9"},
		{name: "real ip", remoteAddr: "10.0.0.1:5555", xri: "198.51.100.4", want: "198.51.100.4"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestAllow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reset := time.Unix(1700000000, 0)

	t.Run("allowed sets headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := allow(rec, httptest.NewRequest(http.MethodPost, "/", nil), logger,
			&cache.RateLimitResult{Allowed: true, Limit: 10, Remaining: 7, ResetAt: reset}, "login")

		assert.True(t, ok)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "7", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1700000000", rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("denied writes 429", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := allow(rec, httptest.NewRequest(http.MethodPost, "/", nil), logger,
			&cache.RateLimitResult{Allowed: false, Limit: 10, ResetAt: reset, RetryAfter: 1500 * time.Millisecond}, "upload")

		assert.False(t, ok)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMITED"`)
	})

	t.Run("unlimited omits headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		allow(rec, httptest.NewRequest(http.MethodPost, "/", nil), logger,
			&cache.RateLimitResult{Allowed: true, Remaining: -1, ResetAt: reset}, "login")
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})
}

func TestRateLimitLogin_DisabledPassesThrough(t *testing.T) {
	handler := RateLimitLogin(RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
