package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AppPort != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.AppPort)
	}
	if cfg.UploadDir != "uploads" {
		t.Errorf("expected default upload dir 'uploads', got %s", cfg.UploadDir)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("expected default session TTL 1h, got %s", cfg.SessionTTL)
	}
	if cfg.EnableWebviewFallback {
		t.Error("expected webview fallback to be disabled by default")
	}
}

func TestLoad_ProductionRequiresSecretKey(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "")

	_, err := Load()
	if !errors.Is(err, ErrInsecureProduction) {
		t.Fatalf("expected ErrInsecureProduction, got %v", err)
	}
}

func TestLoad_ProductionWithSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "a-real-secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !cfg.SecureCookies() {
		t.Error("production must use secure cookies")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid LOG_FORMAT")
	}
}

func TestConfig_WebviewFallbackEnabled(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		enabled bool
		want    bool
	}{
		{"dev enabled", "development", true, true},
		{"dev disabled", "development", false, false},
		{"production never", "production", true, false},
		{"staging enabled", "staging", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AppEnv: tt.env, EnableWebviewFallback: tt.enabled}
			if got := cfg.WebviewFallbackEnabled(); got != tt.want {
				t.Errorf("WebviewFallbackEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_SecureCookies(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"development plain", Config{AppEnv: "development"}, false},
		{"development https", Config{AppEnv: "development", UseHTTPS: true}, true},
		{"production", Config{AppEnv: "production"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.SecureCookies(); got != tt.want {
				t.Errorf("SecureCookies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_GoogleOAuthEnabled(t *testing.T) {
	cfg := &Config{GoogleClientID: "id"}
	if cfg.GoogleOAuthEnabled() {
		t.Error("expected OAuth disabled without secret")
	}
	cfg.GoogleClientSecret = "secret"
	if !cfg.GoogleOAuthEnabled() {
		t.Error("expected OAuth enabled with id and secret")
	}
}

func TestGetCORSAllowedOrigins(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"single", "https://example.com", []string{"https://example.com"}},
		{"multiple with spaces", "https://a.com , https://b.com", []string{"https://a.com", "https://b.com"}},
		{"trailing comma", "https://a.com,", []string{"https://a.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{CORSAllowedOrigins: tt.input}
			result := cfg.GetCORSAllowedOrigins()

			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d origins, got %d", len(tt.expected), len(result))
			}
			for i, origin := range result {
				if origin != tt.expected[i] {
					t.Errorf("expected origin %s, got %s", tt.expected[i], origin)
				}
			}
		})
	}
}
