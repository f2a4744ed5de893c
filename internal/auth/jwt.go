package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voicescript/collector/internal/model"
)

const (
	// FallbackCookieName carries the signed webview fallback token.
	FallbackCookieName = "voicescript_session"
	// FallbackTTL is the lifetime of a fallback token.
	FallbackTTL = time.Hour
	// StateTTL bounds the OAuth round trip.
	StateTTL = 10 * time.Minute
	// StateCookieName binds an OAuth state to the browser that started the flow.
	StateCookieName = "oauth_state"

	fallbackAudience = "voicescript-webview"
	stateAudience    = "voicescript-oauth-state"
)

// ErrInvalidToken is returned for any unverifiable signed token.
var ErrInvalidToken = errors.New("invalid token")

// FallbackClaims identify a user for embedded webviews that drop session cookies.
type FallbackClaims struct {
	Role model.Role `json:"role"`
	Name string     `json:"name"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens keyed by the application secret.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret), now: time.Now}
}

// IssueFallback signs a fallback token for p.
func (s *Signer) IssueFallback(p *model.Principal) (string, error) {
	now := s.now()
	claims := FallbackClaims{
		Role: p.Role,
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			Audience:  jwt.ClaimStrings{fallbackAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(FallbackTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign fallback token: %w", err)
	}
	return signed, nil
}

// VerifyFallback parses a fallback token into a principal.
func (s *Signer) VerifyFallback(token string) (*model.Principal, error) {
	var claims FallbackClaims
	if err := s.parse(token, &claims, fallbackAudience); err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}

	return &model.Principal{UserID: userID, Role: claims.Role, Name: claims.Name}, nil
}

// IssueState signs an OAuth state value carrying a random nonce.
func (s *Signer) IssueState() (string, error) {
	nonce, err := GenerateSecret(16)
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        nonce,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// VerifyState checks an OAuth state value against the copy held in the
// browser's state cookie and returns its nonce. Callers must consume the
// nonce so a state cannot be replayed.
func (s *Signer) VerifyState(state, bound string) (string, error) {
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(bound)) != 1 {
		return "", ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	if err := s.parse(state, &claims, stateAudience); err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

func (s *Signer) parse(token string, claims jwt.Claims, audience string) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
