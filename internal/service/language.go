package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// LanguageService manages languages and their pricing.
type LanguageService struct {
	repo   *repository.Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewLanguageService creates a new LanguageService. The cache is optional.
func NewLanguageService(repo *repository.Repository, c *cache.Cache, logger *slog.Logger) *LanguageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LanguageService{repo: repo, cache: c, logger: logger.With("component", "languages")}
}

// LanguageInput defines input for creating or updating a language.
type LanguageInput struct {
	Code                      string
	Name                      *string
	NativeName                *string
	IsActive                  *bool
	ProviderRatePerWord       *float64
	ReviewerRatePerSubmission *float64
	Currency                  string
}

// LanguageWithPricing pairs a language with its rates.
type LanguageWithPricing struct {
	*model.Language
	Pricing *model.PricingRate `json:"pricing"`
}

// ListActive returns active languages sorted by name.
func (s *LanguageService) ListActive(ctx context.Context) ([]*model.Language, error) {
	return s.repo.ListLanguages(ctx, true)
}

// ListAll returns every language with its pricing.
func (s *LanguageService) ListAll(ctx context.Context) ([]*LanguageWithPricing, error) {
	langs, err := s.repo.ListLanguages(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]*LanguageWithPricing, 0, len(langs))
	for _, l := range langs {
		p, err := s.GetPricing(ctx, l.Code)
		if err != nil {
			return nil, err
		}
		out = append(out, &LanguageWithPricing{Language: l, Pricing: p})
	}
	return out, nil
}

// Get returns a language and its pricing.
func (s *LanguageService) Get(ctx context.Context, code string) (*LanguageWithPricing, error) {
	lang, err := s.repo.GetLanguage(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}
	p, err := s.GetPricing(ctx, lang.Code)
	if err != nil {
		return nil, err
	}
	return &LanguageWithPricing{Language: lang, Pricing: p}, nil
}

// Create adds a language with the given or default rates.
func (s *LanguageService) Create(ctx context.Context, in LanguageInput) (*LanguageWithPricing, error) {
	code := normalizeCode(in.Code)
	if code == "" {
		return nil, invalid("code", "language code is required")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, invalid("name", "language name is required")
	}

	lang := &model.Language{
		Code:     code,
		Name:     strings.TrimSpace(*in.Name),
		IsActive: true,
	}
	if in.NativeName != nil {
		lang.NativeName = strings.TrimSpace(*in.NativeName)
	}
	if in.IsActive != nil {
		lang.IsActive = *in.IsActive
	}

	pricing := model.DefaultPricing(code)
	applyRates(pricing, in)
	if err := validateRates(pricing); err != nil {
		return nil, err
	}

	if err := s.repo.CreateLanguage(ctx, lang, pricing); err != nil {
		if errors.Is(err, repository.ErrLanguageExists) {
			return nil, ErrLanguageExists
		}
		return nil, err
	}
	s.invalidatePricing(ctx, code)

	s.logger.Info("language_created", "code", code)
	return &LanguageWithPricing{Language: lang, Pricing: pricing}, nil
}

// Update edits a language and upserts pricing when rates are present.
func (s *LanguageService) Update(ctx context.Context, code string, in LanguageInput) (*LanguageWithPricing, error) {
	lang, err := s.repo.GetLanguage(ctx, normalizeCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, invalid("name", "language name cannot be empty")
		}
		lang.Name = strings.TrimSpace(*in.Name)
	}
	if in.NativeName != nil {
		lang.NativeName = strings.TrimSpace(*in.NativeName)
	}
	if in.IsActive != nil {
		lang.IsActive = *in.IsActive
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateLanguage(ctx, lang); err != nil {
			return err
		}
		if in.ProviderRatePerWord == nil && in.ReviewerRatePerSubmission == nil && in.Currency == "" {
			return nil
		}
		pricing, err := tx.GetOrCreatePricing(ctx, lang.Code)
		if err != nil {
			return err
		}
		applyRates(pricing, in)
		if err := validateRates(pricing); err != nil {
			return err
		}
		return tx.UpsertPricing(ctx, pricing)
	})
	if err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}
	s.invalidatePricing(ctx, lang.Code)

	p, err := s.GetPricing(ctx, lang.Code)
	if err != nil {
		return nil, err
	}
	return &LanguageWithPricing{Language: lang, Pricing: p}, nil
}

// GetPricing returns a language's rates, falling back to defaults without
// persisting them.
func (s *LanguageService) GetPricing(ctx context.Context, code string) (*model.PricingRate, error) {
	code = normalizeCode(code)
	if s.cache != nil {
		if p, err := s.cache.GetPricing(ctx, code); err == nil {
			return p, nil
		}
	}

	p, err := s.repo.GetPricing(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrPricingNotFound) {
			return model.DefaultPricing(code), nil
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPricing(ctx, p); err != nil {
			s.logger.Warn("pricing_cache_write_failed", "code", code, "error", err)
		}
	}
	return p, nil
}

// UpdatePricing upserts a language's rates.
func (s *LanguageService) UpdatePricing(ctx context.Context, code string, in LanguageInput) (*model.PricingRate, error) {
	code = normalizeCode(code)
	if _, err := s.repo.GetLanguage(ctx, code); err != nil {
		if errors.Is(err, repository.ErrLanguageNotFound) {
			return nil, ErrLanguageNotFound
		}
		return nil, err
	}

	pricing, err := s.GetPricing(ctx, code)
	if err != nil {
		return nil, err
	}
	applyRates(pricing, in)
	if err := validateRates(pricing); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertPricing(ctx, pricing); err != nil {
		return nil, err
	}
	s.invalidatePricing(ctx, code)

	s.logger.Info("pricing_updated", "code", code,
		"provider_rate_per_word", pricing.ProviderRatePerWord,
		"reviewer_rate_per_submission", pricing.ReviewerRatePerSubmission)
	return pricing, nil
}

func (s *LanguageService) invalidatePricing(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePricing(ctx, code); err != nil {
		s.logger.Warn("pricing_cache_invalidate_failed", "code", code, "error", err)
	}
}

func applyRates(p *model.PricingRate, in LanguageInput) {
	if in.ProviderRatePerWord != nil {
		p.ProviderRatePerWord = *in.ProviderRatePerWord
	}
	if in.ReviewerRatePerSubmission != nil {
		p.ReviewerRatePerSubmission = *in.ReviewerRatePerSubmission
	}
	if in.Currency != "" {
		p.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	}
}

func validateRates(p *model.PricingRate) error {
	if p.ProviderRatePerWord < 0 {
		return invalid("provider_rate_per_word", "rate cannot be negative")
	}
	if p.ReviewerRatePerSubmission < 0 {
		return invalid("reviewer_rate_per_submission", "rate cannot be negative")
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
