package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// EarningsService reports billing to users and manages the display toggle.
type EarningsService struct {
	repo   *repository.Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewEarningsService creates a new EarningsService. The cache is optional.
func NewEarningsService(repo *repository.Repository, c *cache.Cache, logger *slog.Logger) *EarningsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EarningsService{repo: repo, cache: c, logger: logger.With("component", "earnings")}
}

// Earnings is a user's billing summary.
type Earnings struct {
	Enabled         bool                   `json:"enabled"`
	ProviderTotal   float64                `json:"provider_total"`
	ReviewerTotal   float64                `json:"reviewer_total"`
	Total           float64                `json:"total"`
	ProviderRecords []*model.BillingRecord `json:"provider_records"`
	ReviewerRecords []*model.BillingRecord `json:"reviewer_records"`
}

// Earnings lists the principal's billing. Returns ErrEarningsDisabled when
// the show_earnings setting is off.
func (s *EarningsService) Earnings(ctx context.Context, p *model.Principal) (*Earnings, error) {
	show, err := s.ShowEarnings(ctx)
	if err != nil {
		return nil, err
	}
	if !show {
		return nil, ErrEarningsDisabled
	}

	provider, err := s.repo.ListBillingRecords(ctx, p.UserID, model.BillingProvider)
	if err != nil {
		return nil, err
	}
	reviewer, err := s.repo.ListBillingRecords(ctx, p.UserID, model.BillingReviewer)
	if err != nil {
		return nil, err
	}

	e := &Earnings{
		Enabled:         true,
		ProviderRecords: nonNil(provider),
		ReviewerRecords: nonNil(reviewer),
		ProviderTotal:   sumAmounts(provider),
		ReviewerTotal:   sumAmounts(reviewer),
	}
	switch p.Role {
	case model.RoleProvider:
		e.Total = e.ProviderTotal
	case model.RoleReviewer:
		e.Total = e.ReviewerTotal
	default:
		e.Total = model.RoundCents(e.ProviderTotal + e.ReviewerTotal)
	}
	return e, nil
}

// ShowEarnings reports the show_earnings setting. Missing means true.
func (s *EarningsService) ShowEarnings(ctx context.Context) (bool, error) {
	v, err := s.GetShowEarnings(ctx)
	if err != nil {
		return false, err
	}
	return v != "false", nil
}

// GetShowEarnings returns the raw setting value, "true" when unset.
func (s *EarningsService) GetShowEarnings(ctx context.Context) (string, error) {
	if s.cache != nil {
		if v, err := s.cache.GetSetting(ctx, model.SettingShowEarnings); err == nil {
			return v, nil
		}
	}

	setting, err := s.repo.GetSetting(ctx, model.SettingShowEarnings)
	if err != nil {
		if errors.Is(err, repository.ErrSettingNotFound) {
			return "true", nil
		}
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.SetSetting(ctx, model.SettingShowEarnings, setting.Value); err != nil {
			s.logger.Warn("setting_cache_write_failed", "key", model.SettingShowEarnings, "error", err)
		}
	}
	return setting.Value, nil
}

// SetShowEarnings stores the toggle. The value must be "true" or "false".
func (s *EarningsService) SetShowEarnings(ctx context.Context, value string) error {
	if value != "true" && value != "false" {
		return invalid("value", `value must be "true" or "false"`)
	}
	if err := s.repo.UpsertSetting(ctx, model.SettingShowEarnings, value, "Show earnings to providers and reviewers"); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSetting(ctx, model.SettingShowEarnings); err != nil {
			s.logger.Warn("setting_cache_invalidate_failed", "key", model.SettingShowEarnings, "error", err)
		}
	}
	s.logger.Info("setting_updated", "key", model.SettingShowEarnings, "value", value)
	return nil
}

func sumAmounts(records []*model.BillingRecord) float64 {
	var cents int64
	for _, r := range records {
		cents += int64(math.Round(r.Amount * 100))
	}
	return float64(cents) / 100
}

func nonNil(records []*model.BillingRecord) []*model.BillingRecord {
	if records == nil {
		return []*model.BillingRecord{}
	}
	return records
}
