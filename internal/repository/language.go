package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// Common errors for language and pricing operations.
var (
	ErrLanguageNotFound = errors.New("language not found")
	ErrLanguageExists   = errors.New("language code already exists")
	ErrPricingNotFound  = errors.New("pricing not found")
)

// CreateLanguage inserts a language together with its pricing row.
func (r *Repository) CreateLanguage(ctx context.Context, lang *model.Language, pricing *model.PricingRate) error {
	return r.InTx(ctx, func(tx *Repository) error {
		err := tx.db.QueryRow(ctx, `
			INSERT INTO languages (code, name, native_name, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, lang.Code, lang.Name, nullString(lang.NativeName), lang.IsActive).Scan(&lang.ID, &lang.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrLanguageExists
			}
			return fmt.Errorf("failed to create language: %w", err)
		}

		if pricing == nil {
			pricing = model.DefaultPricing(lang.Code)
		}
		pricing.LanguageCode = lang.Code
		return tx.UpsertPricing(ctx, pricing)
	})
}

// GetLanguage retrieves a language by code.
func (r *Repository) GetLanguage(ctx context.Context, code string) (*model.Language, error) {
	lang, err := scanLanguage(r.db.QueryRow(ctx, `
		SELECT id, code, name, native_name, is_active, created_at
		FROM languages WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLanguageNotFound
		}
		return nil, fmt.Errorf("failed to get language: %w", err)
	}
	return lang, nil
}

// ListLanguages returns languages sorted by name.
func (r *Repository) ListLanguages(ctx context.Context, activeOnly bool) ([]*model.Language, error) {
	query := psql.Select("id", "code", "name", "native_name", "is_active", "created_at").
		From("languages").
		OrderBy("name ASC")
	if activeOnly {
		query = query.Where("is_active = TRUE")
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build language query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	defer rows.Close()

	var langs []*model.Language
	for rows.Next() {
		lang, err := scanLanguage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}

// UpdateLanguage persists name, native name and active flag.
func (r *Repository) UpdateLanguage(ctx context.Context, lang *model.Language) error {
	result, err := r.db.Exec(ctx, `
		UPDATE languages SET name = $2, native_name = $3, is_active = $4
		WHERE code = $1
	`, lang.Code, lang.Name, nullString(lang.NativeName), lang.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update language: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLanguageNotFound
	}
	return nil
}

// GetPricing retrieves the pricing row for a language.
func (r *Repository) GetPricing(ctx context.Context, code string) (*model.PricingRate, error) {
	var p model.PricingRate
	err := r.db.QueryRow(ctx, `
		SELECT id, language_code, provider_rate_per_word, reviewer_rate_per_submission, currency, updated_at
		FROM pricing_rates WHERE language_code = $1
	`, code).Scan(&p.ID, &p.LanguageCode, &p.ProviderRatePerWord, &p.ReviewerRatePerSubmission, &p.Currency, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPricingNotFound
		}
		return nil, fmt.Errorf("failed to get pricing: %w", err)
	}
	return &p, nil
}

// UpsertPricing creates or replaces a language's rates.
func (r *Repository) UpsertPricing(ctx context.Context, p *model.PricingRate) error {
	if p.Currency == "" {
		p.Currency = model.DefaultCurrency
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO pricing_rates (language_code, provider_rate_per_word, reviewer_rate_per_submission, currency, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (language_code) DO UPDATE SET
			provider_rate_per_word = EXCLUDED.provider_rate_per_word,
			reviewer_rate_per_submission = EXCLUDED.reviewer_rate_per_submission,
			currency = EXCLUDED.currency,
			updated_at = NOW()
		RETURNING id, updated_at
	`, p.LanguageCode, p.ProviderRatePerWord, p.ReviewerRatePerSubmission, p.Currency).Scan(&p.ID, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert pricing: %w", err)
	}
	return nil
}

// GetOrCreatePricing returns the language's rates, inserting defaults when absent.
func (r *Repository) GetOrCreatePricing(ctx context.Context, code string) (*model.PricingRate, error) {
	p, err := r.GetPricing(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPricingNotFound) {
		return nil, err
	}

	p = model.DefaultPricing(code)
	err = r.db.QueryRow(ctx, `
		INSERT INTO pricing_rates (language_code, provider_rate_per_word, reviewer_rate_per_submission, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (language_code) DO UPDATE SET language_code = EXCLUDED.language_code
		RETURNING id, provider_rate_per_word, reviewer_rate_per_submission, currency, updated_at
	`, code, p.ProviderRatePerWord, p.ReviewerRatePerSubmission, p.Currency).Scan(
		&p.ID, &p.ProviderRatePerWord, &p.ReviewerRatePerSubmission, &p.Currency, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create default pricing: %w", err)
	}
	return p, nil
}

func scanLanguage(row pgx.Row) (*model.Language, error) {
	var (
		l      model.Language
		native *string
	)
	if err := row.Scan(&l.ID, &l.Code, &l.Name, &native, &l.IsActive, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.NativeName = derefString(native)
	return &l, nil
}
