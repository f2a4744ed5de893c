//go:build integration

package migrate_test

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicescript/collector/internal/migrate"
	"github.com/voicescript/collector/internal/testutil"
	"github.com/voicescript/collector/migrations"
)

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	tables := []string{
		"users",
		"languages",
		"pricing_rates",
		"app_settings",
		"scripts",
		"script_variant_requirements",
		"submissions",
		"billing_records",
		"webhook_endpoints",
		"webhook_deliveries",
		migrate.VersionTable,
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_SubmissionColumns(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	columns := []string{
		"user_id", "script_id", "language_code", "text_content", "transcript",
		"audio_filename", "status", "reviewed_at", "reviewed_by", "quality_score",
		"word_count", "provider_gender", "provider_age_group",
		"collected_by_admin_id", "speaker_name", "speaker_location", "is_field_collection",
	}

	for _, col := range columns {
		exists, err := columnExists(ctx, pool, "submissions", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column submissions.%s should exist", col)
		}
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	runner := migrate.NewRunner(pool, migrations.FS, nil)
	applied, err := runner.Up(ctx)
	if err != nil {
		t.Fatalf("second Up failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second Up applied %d migrations, want 0", len(applied))
	}

	status, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, entry := range status {
		if !entry.Applied {
			t.Errorf("migration %s should be applied", entry.ScriptName)
		}
	}
}

func TestIntegrationMigration_ChecksumMismatch(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	loaded, err := migrate.Load(migrations.FS)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tampered := fstest.MapFS{}
	for _, m := range loaded {
		tampered[m.ScriptName] = &fstest.MapFile{Data: []byte(m.SQL)}
	}
	first := loaded[0].ScriptName
	tampered[first] = &fstest.MapFile{Data: []byte(loaded[0].SQL + "\n-- edited\n")}

	_, err = migrate.NewRunner(pool, tampered, nil).Up(ctx)
	if !errors.Is(err, migrate.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestIntegrationMigration_DefaultSettingSeeded(t *testing.T) {
	ctx, pool := newMigrationTestEnv(t)

	var value string
	err := pool.QueryRow(ctx, `SELECT setting_value FROM app_settings WHERE setting_key = 'show_earnings'`).Scan(&value)
	if err != nil {
		t.Fatalf("query setting: %v", err)
	}
	if value != "true" {
		t.Errorf("show_earnings = %q, want true", value)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool
}
