package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// rateLimitLoginPrefix keys login attempts by hashed client IP.
	rateLimitLoginPrefix = "ratelimit:login:"
	// rateLimitUploadPrefix keys audio uploads by user.
	rateLimitUploadPrefix = "ratelimit:upload:"
	// rateLimitTTL is the TTL for rate limit buckets.
	rateLimitTTL = 120 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token atomically.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckLoginRateLimit throttles password login attempts per client IP.
// The IP is hashed so raw addresses never reach Redis.
func (c *Cache) CheckLoginRateLimit(ctx context.Context, ip string, perMinute int) (*RateLimitResult, error) {
	return c.checkPerMinute(ctx, rateLimitLoginPrefix+hashIP(ip), perMinute)
}

// CheckUploadRateLimit throttles audio uploads per user.
func (c *Cache) CheckUploadRateLimit(ctx context.Context, userID int64, perMinute int) (*RateLimitResult, error) {
	return c.checkPerMinute(ctx, rateLimitUploadPrefix+strconv.FormatInt(userID, 10), perMinute)
}

func (c *Cache) checkPerMinute(ctx context.Context, key string, perMinute int) (*RateLimitResult, error) {
	if perMinute <= 0 {
		return unlimited(), nil
	}
	return c.checkRateLimit(ctx, key, float64(perMinute)/60.0, perMinute, int(rateLimitTTL.Seconds()))
}

func unlimited() *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: -1, ResetAt: time.Now().Add(time.Minute)}
}

func (c *Cache) checkRateLimit(ctx context.Context, key string, rate float64, burst, ttl int) (*RateLimitResult, error) {
	now := time.Now().Unix()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now, ttl,
	).Int64Slice()
	if err != nil {
		// Fail open on Redis errors
		return &RateLimitResult{
			Allowed:   true,
			Limit:     int64(burst),
			Remaining: int64(burst),
			ResetAt:   time.Now().Add(time.Minute),
		}, nil
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Limit:      int64(burst),
		Remaining:  result[2],
		ResetAt:    time.Now().Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(result[1]) * time.Second,
	}, nil
}

// hashIP returns the first 8 bytes of SHA256(ip) as hex.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
