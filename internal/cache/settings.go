package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/model"
)

const (
	pricingKeyPrefix = "pricing:"
	settingKeyPrefix = "setting:"

	// PricingTTL bounds staleness of cached pricing rates.
	PricingTTL = 10 * time.Minute
	// SettingTTL bounds staleness of cached app settings.
	SettingTTL = 5 * time.Minute
)

// GetPricing returns the cached rate for a language.
func (c *Cache) GetPricing(ctx context.Context, languageCode string) (*model.PricingRate, error) {
	result, err := c.client.HGetAll(ctx, pricingKeyPrefix+languageCode).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	perWord, err1 := strconv.ParseFloat(result["provider_per_word"], 64)
	perSub, err2 := strconv.ParseFloat(result["reviewer_per_submission"], 64)
	if err1 != nil || err2 != nil {
		_ = c.InvalidatePricing(ctx, languageCode)
		return nil, ErrCacheMiss
	}

	return &model.PricingRate{
		LanguageCode:              languageCode,
		ProviderRatePerWord:       perWord,
		ReviewerRatePerSubmission: perSub,
		Currency:                  result["currency"],
	}, nil
}

// SetPricing caches a pricing rate.
func (c *Cache) SetPricing(ctx context.Context, rate *model.PricingRate) error {
	key := pricingKeyPrefix + rate.LanguageCode
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"provider_per_word":       strconv.FormatFloat(rate.ProviderRatePerWord, 'f', -1, 64),
		"reviewer_per_submission": strconv.FormatFloat(rate.ReviewerRatePerSubmission, 'f', -1, 64),
		"currency":                rate.Currency,
	})
	pipe.Expire(ctx, key, PricingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pricing: %w", err)
	}
	return nil
}

// InvalidatePricing drops the cached rate for a language.
func (c *Cache) InvalidatePricing(ctx context.Context, languageCode string) error {
	return c.client.Del(ctx, pricingKeyPrefix+languageCode).Err()
}

// GetSetting returns a cached app setting value.
func (c *Cache) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, settingKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get setting: %w", err)
	}
	return v, nil
}

// SetSetting caches an app setting value.
func (c *Cache) SetSetting(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, settingKeyPrefix+key, value, SettingTTL).Err()
}

// InvalidateSetting drops a cached setting.
func (c *Cache) InvalidateSetting(ctx context.Context, key string) error {
	return c.client.Del(ctx, settingKeyPrefix+key).Err()
}
