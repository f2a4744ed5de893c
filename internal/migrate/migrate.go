// Package migrate applies versioned SQL migrations to PostgreSQL.
//
// Files are named V{n}__{description}.sql. Each file is applied once, inside
// its own transaction, and recorded in schema_version with a sha256 checksum.
// Editing a file after it has been applied is an error.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VersionTable records applied migrations.
const VersionTable = "schema_version"

// advisoryLockID serializes concurrent runners.
const advisoryLockID = 7340021

var (
	// ErrChecksumMismatch indicates an applied migration file was modified.
	ErrChecksumMismatch = errors.New("applied migration has been modified")

	fileNameRegex = regexp.MustCompile(`^V(\d+)__(.+)\.sql$`)
)

// Migration is one parsed migration file.
type Migration struct {
	Version     string
	Description string
	ScriptName  string
	Checksum    string
	SQL         string

	number int
}

// AppliedMigration is a row of the version table.
type AppliedMigration struct {
	Version         string
	Description     string
	ScriptName      string
	Checksum        string
	ExecutedAt      time.Time
	ExecutionTimeMs int
	Success         bool
}

// StatusEntry describes one migration's state.
type StatusEntry struct {
	Migration
	Applied    bool
	ExecutedAt *time.Time
}

// Runner applies migrations from an fs.FS.
type Runner struct {
	pool   *pgxpool.Pool
	source fs.FS
	logger *slog.Logger
}

// NewRunner creates a Runner reading *.sql files at the root of source.
func NewRunner(pool *pgxpool.Pool, source fs.FS, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pool:   pool,
		source: source,
		logger: logger.With("component", "migrate"),
	}
}

// ParseFileName extracts version and description from V{n}__{desc}.sql.
func ParseFileName(name string) (version, description string, ok bool) {
	m := fileNameRegex.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ReplaceAll(m[2], "_", " "), true
}

// Checksum returns the sha256 hex digest of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Load reads and sorts all migration files by numeric version.
func Load(source fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, ok := ParseFileName(entry.Name())
		if !ok {
			continue
		}
		number, err := strconv.Atoi(version)
		if err != nil {
			return nil, fmt.Errorf("parse version of %s: %w", entry.Name(), err)
		}
		if other, dup := seen[number]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", number, other, entry.Name())
		}
		seen[number] = entry.Name()

		content, err := fs.ReadFile(source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			ScriptName:  entry.Name(),
			Checksum:    Checksum(content),
			SQL:         string(content),
			number:      number,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].number < migrations[j].number
	})
	return migrations, nil
}

// Up applies all pending migrations and returns the ones applied.
func (r *Runner) Up(ctx context.Context) ([]Migration, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockID)
	}()

	if err := ensureVersionTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}

	pending, err := r.pending(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		r.logger.Info("database is up to date")
		return nil, nil
	}

	for _, m := range pending {
		if err := r.apply(ctx, conn.Conn(), m); err != nil {
			return nil, err
		}
	}

	r.logger.Info("migrations applied", "count", len(pending))
	return pending, nil
}

// Status reports every known migration and whether it has been applied.
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	migrations, err := Load(r.source)
	if err != nil {
		return nil, err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := ensureVersionTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(migrations))
	for _, m := range migrations {
		entry := StatusEntry{Migration: m}
		if a, ok := applied[m.Version]; ok {
			entry.Applied = true
			executedAt := a.ExecutedAt
			entry.ExecutedAt = &executedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Runner) pending(ctx context.Context, conn *pgx.Conn) ([]Migration, error) {
	migrations, err := Load(r.source)
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return nil, err
	}
	return Pending(migrations, applied)
}

// Pending filters out applied migrations, verifying their checksums.
func Pending(migrations []Migration, applied map[string]AppliedMigration) ([]Migration, error) {
	var pending []Migration
	for _, m := range migrations {
		a, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if a.Checksum != m.Checksum {
			return nil, fmt.Errorf("%w: %s (expected %s, found %s)",
				ErrChecksumMismatch, m.ScriptName, a.Checksum, m.Checksum)
		}
	}
	return pending, nil
}

func (r *Runner) apply(ctx context.Context, conn *pgx.Conn, m Migration) error {
	start := time.Now()
	r.logger.Info("applying migration", "version", m.Version, "description", m.Description)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range SplitStatements(m.SQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration V%s failed: %w", m.Version, err)
		}
	}

	elapsed := time.Since(start).Milliseconds()
	_, err = tx.Exec(ctx, `
		INSERT INTO `+VersionTable+` (version, description, script_name, checksum, execution_time_ms, success)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, m.Version, m.Description, m.ScriptName, m.Checksum, elapsed)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", m.Version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Version, err)
	}

	r.logger.Info("migration applied", "version", m.Version, "duration_ms", elapsed)
	return nil
}

func ensureVersionTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+VersionTable+` (
			version VARCHAR(50) PRIMARY KEY,
			description VARCHAR(200) NOT NULL,
			script_name VARCHAR(100) NOT NULL,
			checksum VARCHAR(64) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			execution_time_ms INTEGER,
			success BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	if err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]AppliedMigration, error) {
	rows, err := conn.Query(ctx, `
		SELECT version, description, script_name, checksum, executed_at,
		       COALESCE(execution_time_ms, 0), success
		FROM `+VersionTable+`
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]AppliedMigration)
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Description, &a.ScriptName, &a.Checksum,
			&a.ExecutedAt, &a.ExecutionTimeMs, &a.Success); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[a.Version] = a
	}
	return applied, rows.Err()
}
