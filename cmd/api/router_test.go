package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/config"
	"github.com/voicescript/collector/internal/events"
	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
)

// newTestRouter wires the router without backing stores. Only routes that
// are rejected before reaching a service can be exercised.
func newTestRouter(t *testing.T) (http.Handler, *auth.Signer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer := auth.NewSigner("router-test-secret")
	cfg := &config.Config{
		AppEnv:                    "development",
		EnableWebviewFallback:     true,
		CORSAllowedOrigins:        "https://app.voicescript.test",
		MaxRequestBodySize:        1 << 20,
		MaxUploadBytes:            1 << 20,
		RateLimitLoginPerMinute:   0,
		RateLimitUploadsPerMinute: 0,
	}

	r := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		signer:   signer,
		hub:      events.NewHub(logger, nil),
		recorder: metrics.NewInMemory(),
	})
	return r, signer
}

func fallbackToken(t *testing.T, signer *auth.Signer, role model.Role) string {
	t.Helper()
	token, err := signer.IssueFallback(&model.Principal{UserID: 7, Email: string(role) + "@demo.com", Role: role})
	require.NoError(t, err)
	return token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func TestRouter_Healthz(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voicescript_")
}

func TestRouter_Access(t *testing.T) {
	r, signer := newTestRouter(t)

	tests := []struct {
		name     string
		method   string
		path     string
		role     model.Role
		body     string
		ctype    string
		wantCode int
		wantErr  string
	}{
		{name: "dashboard needs session", method: "GET", path: "/api/dashboard", wantCode: 401, wantErr: "UNAUTHORIZED"},
		{name: "me needs session", method: "GET", path: "/api/auth/me", wantCode: 401, wantErr: "UNAUTHORIZED"},
		{name: "provider blocked from admin", method: "GET", path: "/api/admin/users", role: model.RoleProvider, wantCode: 403, wantErr: "FORBIDDEN"},
		{name: "provider blocked from review queue", method: "GET", path: "/api/reviews/pending", role: model.RoleProvider, wantCode: 403, wantErr: "FORBIDDEN"},
		{name: "reviewer blocked from uploads", method: "POST", path: "/api/submissions", role: model.RoleReviewer, wantCode: 403, wantErr: "FORBIDDEN"},
		{name: "reviewer blocked from export", method: "GET", path: "/api/admin/export", role: model.RoleReviewer, wantCode: 403, wantErr: "FORBIDDEN"},
		{name: "admin json only", method: "POST", path: "/api/admin/scripts", role: model.RoleAdmin, body: "content", ctype: "text/plain", wantCode: 415, wantErr: "UNSUPPORTED_MEDIA_TYPE"},
		{name: "settings json only", method: "PUT", path: "/api/admin/settings/earnings", role: model.RoleAdmin, body: "show_earnings=true", ctype: "application/x-www-form-urlencoded", wantCode: 415, wantErr: "UNSUPPORTED_MEDIA_TYPE"},
		{name: "unknown route", method: "GET", path: "/api/nope", wantCode: 404, wantErr: "NOT_FOUND"},
		{name: "wrong method", method: "DELETE", path: "/healthz", wantCode: 405, wantErr: "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.role != "" {
				path += "?auth_token=" + fallbackToken(t, signer, tt.role)
			}
			req := httptest.NewRequest(tt.method, path, strings.NewReader(tt.body))
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/scripts", nil)
	req.Header.Set("Origin", "https://app.voicescript.test")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.voicescript.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
