package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicescript/collector/internal/model"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("demo123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$"))

	ok, err := VerifyPassword("demo123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_Uniqueness(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "salts must differ")
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
		want error
	}{
		{"empty", "", ErrInvalidHash},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", ErrInvalidHash},
		{"wrong version", "$argon2id$v=18$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrIncompatibleVersion},
		{"bad params", "$argon2id$v=19$m=x,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassword("x", tt.hash)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()

	current, err := HashPassword("pw")
	require.NoError(t, err)
	assert.False(t, NeedsRehash(current))

	weak, err := hashWithParams("pw", PasswordParams{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	require.NoError(t, err)
	assert.True(t, NeedsRehash(weak))
	assert.True(t, NeedsRehash("garbage"))
}

func TestSessionToken(t *testing.T) {
	t.Parallel()

	a, err := GenerateSessionToken()
	require.NoError(t, err)
	b, err := GenerateSessionToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43, "32 bytes raw base64url")
	assert.Len(t, HashToken(a), 64)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, HashToken(a), HashToken(b))
}

func TestSigner_FallbackRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSigner("test-secret")
	token, err := s.IssueFallback(&model.Principal{UserID: 42, Role: model.RoleReviewer, Name: "Rita Reviewer"})
	require.NoError(t, err)

	p, err := s.VerifyFallback(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, model.RoleReviewer, p.Role)
	assert.Equal(t, "Rita Reviewer", p.Name)
}

func TestSigner_FallbackRejections(t *testing.T) {
	t.Parallel()

	s := NewSigner("test-secret")
	valid, err := s.IssueFallback(&model.Principal{UserID: 1, Role: model.RoleProvider})
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := NewSigner("other-secret").VerifyFallback(valid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("legacy plain value", func(t *testing.T) {
		_, err := s.VerifyFallback("1:admin:Mallory")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		past := NewSigner("test-secret")
		past.now = func() time.Time { return time.Now().Add(-2 * FallbackTTL) }
		old, err := past.IssueFallback(&model.Principal{UserID: 1, Role: model.RoleProvider})
		require.NoError(t, err)

		_, err = s.VerifyFallback(old)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("state token is not a session", func(t *testing.T) {
		state, err := s.IssueState()
		require.NoError(t, err)
		_, err = s.VerifyFallback(state)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.VerifyFallback(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestSigner_State(t *testing.T) {
	t.Parallel()

	s := NewSigner("k")
	state, err := s.IssueState()
	require.NoError(t, err)
	other, err := s.IssueState()
	require.NoError(t, err)

	nonce, err := s.VerifyState(state, state)
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)

	otherNonce, err := s.VerifyState(other, other)
	require.NoError(t, err)
	assert.NotEqual(t, nonce, otherNonce)

	foreign, err := NewSigner("other").IssueState()
	require.NoError(t, err)
	fallback, err := s.IssueFallback(&model.Principal{UserID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name         string
		state, bound string
	}{
		{"no state cookie", state, ""},
		{"cookie from another flow", state, other},
		{"empty state", "", ""},
		{"tampered", state + "x", state + "x"},
		{"wrong key", foreign, foreign},
		{"fallback token", fallback, fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.VerifyState(tt.state, tt.bound)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGoogleClient_Flow(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("grant_type") != "authorization_code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at-1", "token_type": "Bearer"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GoogleUser{
			Subject: "sub-1", Email: "g@example.com", GivenName: "Gia", FamilyName: "Li", Picture: "https://p",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewGoogleClient(GoogleConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/cb",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	})

	consent, err := url.Parse(c.AuthCodeURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "st", consent.Query().Get("state"))
	assert.Equal(t, "cid", consent.Query().Get("client_id"))

	ctx := context.Background()
	token, err := c.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)

	user, err := c.UserInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", user.Subject)
	assert.Equal(t, "g@example.com", user.Email)

	_, err = c.Exchange(ctx, "bad-code")
	assert.ErrorIs(t, err, ErrOAuthExchange)

	_, err = c.UserInfo(ctx, "wrong-token")
	assert.ErrorIs(t, err, ErrOAuthExchange)
}
