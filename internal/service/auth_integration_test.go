//go:build integration

package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
	"github.com/voicescript/collector/internal/testutil"
)

// fakeGoogle answers the token and userinfo endpoints. The authorization
// code doubles as the access token and selects the profile.
func fakeGoogle(t *testing.T, profiles map[string]auth.GoogleUser) *auth.GoogleClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		code := r.PostForm.Get("code")
		if _, ok := profiles[code]; !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": code, "token_type": "Bearer"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		profile, ok := profiles[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return auth.NewGoogleClient(auth.GoogleConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/google/callback",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	})
}

func newGoogleAuth(t *testing.T, env *serviceEnv, profiles map[string]auth.GoogleUser) *AuthService {
	t.Helper()
	c, err := cache.New(env.ctx, testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := testutil.FlushRedis(env.ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return NewAuthService(env.repo, c, auth.NewSigner("test-secret"), fakeGoogle(t, profiles),
		AuthConfig{SessionTTL: time.Hour}, env.recorder, env.logger)
}

func startFlow(t *testing.T, svc *AuthService) string {
	t.Helper()
	target, state, err := svc.GoogleAuthURL()
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	if got := u.Query().Get("state"); got != state {
		t.Fatalf("consent url state = %q, want %q", got, state)
	}
	return state
}

func TestIntegrationGoogleCallback(t *testing.T) {
	env := newServiceEnv(t)
	local := env.mustUser(t, model.RoleReviewer)

	svc := newGoogleAuth(t, env, map[string]auth.GoogleUser{
		"verified":   {Subject: "sub-verified", Email: local.Email, EmailVerified: true, GivenName: "Val"},
		"unverified": {Subject: "sub-attacker", Email: local.Email, EmailVerified: false},
		"newcomer":   {Subject: "sub-new", Email: "new.provider@example.com", EmailVerified: true},
	})

	t.Run("unverified email is not linked", func(t *testing.T) {
		state := startFlow(t, svc)
		_, err := svc.GoogleCallback(env.ctx, "unverified", state, state)
		if !errors.Is(err, ErrEmailUnverified) {
			t.Fatalf("expected ErrEmailUnverified, got %v", err)
		}
		if _, err := env.repo.GetUserByGoogleID(env.ctx, "sub-attacker"); !errors.Is(err, repository.ErrUserNotFound) {
			t.Fatalf("unverified identity was linked: %v", err)
		}
	})

	t.Run("state without matching cookie", func(t *testing.T) {
		state := startFlow(t, svc)
		other := startFlow(t, svc)
		for _, bound := range []string{"", other} {
			if _, err := svc.GoogleCallback(env.ctx, "verified", state, bound); !errors.Is(err, ErrInvalidState) {
				t.Fatalf("bound=%q: expected ErrInvalidState, got %v", bound, err)
			}
		}
	})

	t.Run("verified email links and state is single use", func(t *testing.T) {
		state := startFlow(t, svc)
		result, err := svc.GoogleCallback(env.ctx, "verified", state, state)
		if err != nil {
			t.Fatalf("callback: %v", err)
		}
		if result.User.ID != local.ID {
			t.Fatalf("logged in as user %d, want %d", result.User.ID, local.ID)
		}
		if result.RedirectPath != "/reviewer/dashboard" {
			t.Fatalf("redirect = %q", result.RedirectPath)
		}

		for i := 0; i < 2; i++ {
			if _, err := svc.GoogleCallback(env.ctx, "verified", state, state); !errors.Is(err, ErrInvalidState) {
				t.Fatalf("replay %d: expected ErrInvalidState, got %v", i+1, err)
			}
		}
	})

	t.Run("new verified user becomes provider", func(t *testing.T) {
		state := startFlow(t, svc)
		result, err := svc.GoogleCallback(env.ctx, "newcomer", state, state)
		if err != nil {
			t.Fatalf("callback: %v", err)
		}
		if result.User.Role != model.RoleProvider || result.User.AuthProvider != model.AuthProviderGoogle {
			t.Fatalf("unexpected user: role=%s provider=%s", result.User.Role, result.User.AuthProvider)
		}
	})
}
