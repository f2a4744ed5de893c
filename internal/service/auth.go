package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// DefaultWebviewEmail is used by webview login when no email is given.
const DefaultWebviewEmail = "provider@demo.com"

// AuthConfig holds the session settings AuthService needs.
type AuthConfig struct {
	SessionTTL      time.Duration
	Production      bool
	FallbackEnabled bool
}

// AuthService handles logins and sessions.
type AuthService struct {
	repo    *repository.Repository
	cache   *cache.Cache
	signer  *auth.Signer
	google  *auth.GoogleClient
	cfg     AuthConfig
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAuthService creates a new AuthService. google may be nil when OAuth
// is not configured.
func NewAuthService(repo *repository.Repository, c *cache.Cache, signer *auth.Signer, google *auth.GoogleClient,
	cfg AuthConfig, recorder metrics.Recorder, logger *slog.Logger) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		repo:    repo,
		cache:   c,
		signer:  signer,
		google:  google,
		cfg:     cfg,
		metrics: recorder,
		logger:  logger.With("component", "auth"),
	}
}

// LoginResult is a freshly created session.
type LoginResult struct {
	User          *model.User
	Principal     *model.Principal
	SessionToken  string
	FallbackToken string
	ExpiresAt     time.Time
	RedirectPath  string
}

// Login authenticates with email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid("email", "email and password are required")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.BurnVerify(password)
			s.metrics.IncLogin("password", "failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() {
		auth.BurnVerify(password)
		s.metrics.IncLogin("password", "failure")
		return nil, ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(password, *user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("password_hash_unreadable", "user_id", user.ID, "error", err)
		}
		s.metrics.IncLogin("password", "failure")
		return nil, ErrInvalidCredentials
	}

	if auth.NeedsRehash(*user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
				s.logger.Warn("password_rehash_failed", "user_id", user.ID, "error", err)
			}
		}
	}

	return s.startSession(ctx, user, "password")
}

// DemoLogin signs in as the seeded {role}@demo.com account.
func (s *AuthService) DemoLogin(ctx context.Context, role string) (*LoginResult, error) {
	if s.cfg.Production {
		return nil, ErrDemoDisabled
	}
	r := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if r == "" {
		r = model.RoleProvider
	}
	if !r.Valid() {
		return nil, invalid("demo", "unknown demo role")
	}

	user, err := s.repo.GetUserByEmail(ctx, string(r)+"@demo.com")
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.startSession(ctx, user, "demo")
}

// WebviewLogin signs in by email for embedded webviews. Only available
// while the fallback is enabled.
func (s *AuthService) WebviewLogin(ctx context.Context, email string) (*LoginResult, error) {
	if !s.cfg.FallbackEnabled || s.cfg.Production {
		return nil, ErrFallbackDisabled
	}
	email = normalizeEmail(email)
	if email == "" {
		email = DefaultWebviewEmail
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.startSession(ctx, user, "webview")
}

// Logout revokes the principal's session. Fallback-only principals have
// nothing server-side to revoke.
func (s *AuthService) Logout(ctx context.Context, p *model.Principal) error {
	if p == nil || p.TokenHash == "" {
		return nil
	}
	if err := s.cache.DeleteSession(ctx, p.TokenHash, p.UserID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Info("logout", "user_id", p.UserID)
	return nil
}

// GoogleAuthURL returns the consent URL and the signed state it carries.
// The caller stores the state in the browser's state cookie.
func (s *AuthService) GoogleAuthURL() (target, state string, err error) {
	if s.google == nil {
		return "", "", ErrOAuthDisabled
	}
	state, err = s.signer.IssueState()
	if err != nil {
		return "", "", err
	}
	return s.google.AuthCodeURL(state), state, nil
}

// GoogleCallback completes the OAuth flow. state must equal boundState, the
// value from the browser's state cookie, and is accepted once. Users are
// matched by Google ID, then by verified email (linking the account), and
// created as providers otherwise.
func (s *AuthService) GoogleCallback(ctx context.Context, code, state, boundState string) (*LoginResult, error) {
	if s.google == nil {
		return nil, ErrOAuthDisabled
	}
	nonce, err := s.signer.VerifyState(state, boundState)
	if err != nil {
		s.metrics.IncLogin("google", "failure")
		return nil, ErrInvalidState
	}
	fresh, err := s.cache.ConsumeOAuthState(ctx, nonce, auth.StateTTL)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.metrics.IncLogin("google", "failure")
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, invalid("code", "authorization code is required")
	}

	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		s.metrics.IncLogin("google", "failure")
		return nil, err
	}
	info, err := s.google.UserInfo(ctx, token)
	if err != nil {
		s.metrics.IncLogin("google", "failure")
		return nil, err
	}
	if !info.EmailVerified {
		s.metrics.IncLogin("google", "failure")
		s.logger.Warn("google_email_unverified", "subject", info.Subject)
		return nil, ErrEmailUnverified
	}

	user, err := s.findOrCreateGoogleUser(ctx, info)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user, "google")
}

func (s *AuthService) findOrCreateGoogleUser(ctx context.Context, info *auth.GoogleUser) (*model.User, error) {
	user, err := s.repo.GetUserByGoogleID(ctx, info.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	email := normalizeEmail(info.Email)
	user, err = s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.repo.LinkGoogleAccount(ctx, user.ID, info.Subject, info.Picture); err != nil {
			return nil, err
		}
		s.logger.Info("google_account_linked", "user_id", user.ID)
		return s.repo.GetUserByID(ctx, user.ID)
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, err
	}

	googleID := info.Subject
	user = &model.User{
		Email:          email,
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		Role:           model.RoleProvider,
		GoogleID:       &googleID,
		ProfilePicture: info.Picture,
		AuthProvider:   model.AuthProviderGoogle,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("google_user_created", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user *model.User, method string) (*LoginResult, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	p := model.NewPrincipal(user)
	p.TokenHash = auth.HashToken(token)

	if err := s.cache.SetSession(ctx, p.TokenHash, p, s.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := &LoginResult{
		User:         user,
		Principal:    p,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(s.cfg.SessionTTL),
		RedirectPath: DashboardPath(user.Role),
	}

	if s.cfg.FallbackEnabled && !s.cfg.Production {
		fallback, err := s.signer.IssueFallback(p)
		if err != nil {
			return nil, err
		}
		result.FallbackToken = fallback
	}

	s.metrics.IncLogin(method, "success")
	s.logger.Info("login", "user_id", user.ID, "role", user.Role, "method", method)
	return result, nil
}

// DashboardPath returns the landing page for a role.
func DashboardPath(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return "/admin/dashboard"
	case model.RoleReviewer:
		return "/reviewer/dashboard"
	}
	return "/provider/dashboard"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
