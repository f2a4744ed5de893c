package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// ErrScriptNotFound is returned when a script does not exist (or is inactive
// for lookups that require an active script).
var ErrScriptNotFound = errors.New("script not found")

const scriptColumns = `id, title, content, category, difficulty, target_duration, language, is_active, created_at`

// ScriptFilter narrows script searches.
type ScriptFilter struct {
	Query      string
	Language   string
	ActiveOnly bool
	Offset     uint64
	Limit      uint64
}

// ScriptDeletion summarizes a cascading script delete.
type ScriptDeletion struct {
	DeletedScripts     int64
	DeletedSubmissions int64
	AudioFilenames     []string
}

// CreateScript inserts a script.
func (r *Repository) CreateScript(ctx context.Context, s *model.Script) error {
	if s.Language == "" {
		s.Language = model.DefaultLanguageCode
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO scripts (title, content, category, difficulty, target_duration, language, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, nullString(s.Title), s.Content, nullString(s.Category), nullString(s.Difficulty),
		s.TargetDuration, s.Language, s.IsActive).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}
	return nil
}

// GetScript retrieves a script by ID regardless of its active flag.
func (r *Repository) GetScript(ctx context.Context, id int64) (*model.Script, error) {
	return r.getScript(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = $1`, id)
}

// GetActiveScript retrieves an active script by ID.
func (r *Repository) GetActiveScript(ctx context.Context, id int64) (*model.Script, error) {
	return r.getScript(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = $1 AND is_active = TRUE`, id)
}

func (r *Repository) getScript(ctx context.Context, query string, id int64) (*model.Script, error) {
	s, err := scanScript(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScriptNotFound
		}
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return s, nil
}

// SearchScripts returns one page of scripts matching the filter and the total match count.
func (r *Repository) SearchScripts(ctx context.Context, f ScriptFilter) ([]*model.Script, int64, error) {
	where := sq.And{}
	if f.ActiveOnly {
		where = append(where, sq.Eq{"is_active": true})
	}
	if f.Language != "" {
		where = append(where, sq.Eq{"language": f.Language})
	}
	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		where = append(where, sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"content": pattern},
			sq.ILike{"category": pattern},
		})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("scripts").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scripts: %w", err)
	}

	query := psql.Select(scriptColumns).From("scripts").Where(where).OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	listSQL, listArgs, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build search query: %w", err)
	}

	scripts, err := r.queryScripts(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	return scripts, total, nil
}

// ListScripts returns every script, newest first.
func (r *Repository) ListScripts(ctx context.Context) ([]*model.Script, error) {
	return r.queryScripts(ctx, `SELECT `+scriptColumns+` FROM scripts ORDER BY created_at DESC, id DESC`)
}

func (r *Repository) queryScripts(ctx context.Context, query string, args ...any) ([]*model.Script, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var scripts []*model.Script
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

// UpdateScript persists content, language and active flag.
func (r *Repository) UpdateScript(ctx context.Context, s *model.Script) error {
	result, err := r.db.Exec(ctx, `
		UPDATE scripts SET content = $2, language = $3, is_active = $4
		WHERE id = $1
	`, s.ID, s.Content, s.Language, s.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update script: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrScriptNotFound
	}
	return nil
}

// ScriptExistsByContent reports whether a script with identical content and language exists.
func (r *Repository) ScriptExistsByContent(ctx context.Context, content, language string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM scripts WHERE content = $1 AND language = $2)
	`, content, language).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check script content: %w", err)
	}
	return exists, nil
}

// DeleteScripts removes scripts and, by cascade, their submissions and billing rows.
// The audio filenames of removed submissions are returned so callers can clean up storage.
func (r *Repository) DeleteScripts(ctx context.Context, ids []int64) (*ScriptDeletion, error) {
	result := &ScriptDeletion{}
	err := r.InTx(ctx, func(tx *Repository) error {
		rows, err := tx.db.Query(ctx, `
			SELECT audio_filename FROM submissions WHERE script_id = ANY($1)
		`, ids)
		if err != nil {
			return fmt.Errorf("failed to list script submissions: %w", err)
		}
		for rows.Next() {
			var name *string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan audio filename: %w", err)
			}
			result.DeletedSubmissions++
			if name != nil && *name != "" {
				result.AudioFilenames = append(result.AudioFilenames, *name)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to list script submissions: %w", err)
		}

		tag, err := tx.db.Exec(ctx, `DELETE FROM scripts WHERE id = ANY($1)`, ids)
		if err != nil {
			return fmt.Errorf("failed to delete scripts: %w", err)
		}
		result.DeletedScripts = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanScript(row pgx.Row) (*model.Script, error) {
	var (
		s                           model.Script
		title, category, difficulty *string
	)
	err := row.Scan(&s.ID, &title, &s.Content, &category, &difficulty,
		&s.TargetDuration, &s.Language, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Title = derefString(title)
	s.Category = derefString(category)
	s.Difficulty = derefString(difficulty)
	return &s, nil
}
