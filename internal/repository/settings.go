package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// ErrSettingNotFound is returned for an unknown setting key.
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting retrieves a setting by key.
func (r *Repository) GetSetting(ctx context.Context, key string) (*model.AppSetting, error) {
	var (
		s    model.AppSetting
		desc *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT setting_key, setting_value, description, updated_at
		FROM app_settings WHERE setting_key = $1
	`, key).Scan(&s.Key, &s.Value, &desc, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	s.Description = derefString(desc)
	return &s, nil
}

// UpsertSetting creates or updates a setting value.
func (r *Repository) UpsertSetting(ctx context.Context, key, value, description string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app_settings (setting_key, setting_value, description, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			description = COALESCE(EXCLUDED.description, app_settings.description),
			updated_at = NOW()
	`, key, value, nullString(description))
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}
