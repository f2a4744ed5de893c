// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/migrate"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops every application table and re-applies all migrations.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		DROP TABLE IF EXISTS
			webhook_deliveries, webhook_endpoints,
			billing_records, submissions, script_variant_requirements, scripts,
			app_settings, pricing_rates, languages, users,
			schema_version
		CASCADE
	`)
	if err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if _, err := migrate.NewRunner(pool, migrations.FS, logger).Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a user with sensible defaults and a unique email.
func NewTestUser(t testing.TB, role model.Role) *model.User {
	t.Helper()
	return &model.User{
		Email:        UniqueEmail(string(role)),
		FirstName:    "Test",
		LastName:     string(role),
		Role:         role,
		Gender:       "female",
		AgeGroup:     "Adult (20–59)",
		AuthProvider: model.AuthProviderLocal,
	}
}

// NewTestScript creates an active English script.
func NewTestScript(t testing.TB, content string) *model.Script {
	t.Helper()
	return &model.Script{
		Content:  content,
		Language: model.DefaultLanguageCode,
		IsActive: true,
	}
}

// UniqueEmail generates a unique email address for tests.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@test.local", prefix, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// NewTestUserWithEmail creates a provider with a fixed email.
func NewTestUserWithEmail(t testing.TB, email string) *model.User {
	t.Helper()
	user := NewTestUser(t, model.RoleProvider)
	user.Email = email
	return user
}
