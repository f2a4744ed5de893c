package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Google endpoints. Overridable for tests.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// ErrOAuthExchange is returned when Google rejects a code or token.
var ErrOAuthExchange = errors.New("oauth exchange failed")

// GoogleUser is the subset of the userinfo response the app uses.
type GoogleUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// GoogleConfig configures the OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
}

// GoogleClient performs the OAuth authorization-code flow.
type GoogleClient struct {
	cfg  GoogleConfig
	http *resty.Client
}

// NewGoogleClient creates a client. Empty endpoint URLs use Google's defaults.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	return &GoogleClient{
		cfg:  cfg,
		http: resty.New().SetTimeout(10 * time.Second),
	}
}

// AuthCodeURL returns the consent page URL carrying state.
func (c *GoogleClient) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("prompt", "select_account")
	return c.cfg.AuthURL + "?" + q.Encode()
}

// Exchange trades an authorization code for an access token.
func (c *GoogleClient) Exchange(ctx context.Context, code string) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"code":          code,
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"redirect_uri":  c.cfg.RedirectURL,
			"grant_type":    "authorization_code",
		}).
		SetResult(&result).
		Post(c.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if resp.IsError() || result.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned %s", ErrOAuthExchange, resp.Status())
	}
	return result.AccessToken, nil
}

// UserInfo fetches the signed-in Google profile.
func (c *GoogleClient) UserInfo(ctx context.Context, accessToken string) (*GoogleUser, error) {
	var user GoogleUser
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get(c.cfg.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: userinfo returned %s", ErrOAuthExchange, resp.Status())
	}
	if user.Subject == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject or email", ErrOAuthExchange)
	}
	return &user, nil
}
