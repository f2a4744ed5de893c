//go:build integration

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/testutil"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	ctx := context.Background()

	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, testutil.FlushRedis(ctx, c.Client()))
	return c
}

func TestSessions_Lifecycle(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	p := &model.Principal{UserID: 7, Email: "p@example.com", Role: model.RoleProvider, Name: "Pat Provider"}
	require.NoError(t, c.SetSession(ctx, "hash-a", p, time.Minute))
	require.NoError(t, c.SetSession(ctx, "hash-b", p, time.Minute))

	got, err := c.GetSession(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, model.RoleProvider, got.Role)
	assert.Equal(t, "hash-a", got.TokenHash)

	require.NoError(t, c.DeleteSession(ctx, "hash-a", 7))
	_, err = c.GetSession(ctx, "hash-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := c.DeleteUserSessions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = c.GetSession(ctx, "hash-b")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_Expire(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	p := &model.Principal{UserID: 8, Role: model.RoleAdmin}
	require.NoError(t, c.SetSession(ctx, "short", p, time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, err := c.GetSession(ctx, "short")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPricingAndSettings(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetPricing(ctx, "sw")
	assert.ErrorIs(t, err, ErrCacheMiss)

	rate := &model.PricingRate{LanguageCode: "sw", ProviderRatePerWord: 0.015, ReviewerRatePerSubmission: 2.5, Currency: "USD"}
	require.NoError(t, c.SetPricing(ctx, rate))

	got, err := c.GetPricing(ctx, "sw")
	require.NoError(t, err)
	assert.InDelta(t, 0.015, got.ProviderRatePerWord, 1e-9)
	assert.InDelta(t, 2.5, got.ReviewerRatePerSubmission, 1e-9)

	require.NoError(t, c.InvalidatePricing(ctx, "sw"))
	_, err = c.GetPricing(ctx, "sw")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetSetting(ctx, model.SettingShowEarnings, "false"))
	v, err := c.GetSetting(ctx, model.SettingShowEarnings)
	require.NoError(t, err)
	assert.Equal(t, "false", v)
	require.NoError(t, c.InvalidateSetting(ctx, model.SettingShowEarnings))
	_, err = c.GetSetting(ctx, model.SettingShowEarnings)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLoginRateLimit_Concurrency(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	const limit = 5
	var allowed, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.CheckLoginRateLimit(ctx, "203.0.113.9", limit)
			if err != nil {
				t.Errorf("CheckLoginRateLimit: %v", err)
				return
			}
			if res.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, allowed, int64(limit+1), "token bucket should cap bursts")
	assert.Positive(t, rejected)
}

func TestConsumeOAuthState(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.ConsumeOAuthState(ctx, "nonce-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.ConsumeOAuthState(ctx, "nonce-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := c.ConsumeOAuthState(ctx, "nonce-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}
