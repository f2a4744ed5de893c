package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/model"
)

const (
	sessionKeyPrefix    = "session:"
	userSessionsPrefix  = "user_sessions:"
	oauthStateKeyPrefix = "oauth_state:"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// sessionData is the JSON stored per session.
type sessionData struct {
	UserID    int64      `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

func userSessionsKey(userID int64) string {
	return userSessionsPrefix + strconv.FormatInt(userID, 10)
}

// SetSession stores a session under its token hash and indexes it by user.
func (c *Cache) SetSession(ctx context.Context, tokenHash string, p *model.Principal, ttl time.Duration) error {
	data, err := json.Marshal(sessionData{
		UserID:    p.UserID,
		Email:     p.Email,
		Role:      p.Role,
		Name:      p.Name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	idx := userSessionsKey(p.UserID)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+tokenHash, data, ttl)
	pipe.SAdd(ctx, idx, tokenHash)
	pipe.Expire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// GetSession loads the principal for a token hash.
func (c *Cache) GetSession(ctx context.Context, tokenHash string) (*model.Principal, error) {
	raw, err := c.client.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		// Corrupted entry - treat as logged out
		return nil, ErrSessionNotFound
	}

	return &model.Principal{
		UserID:    data.UserID,
		Email:     data.Email,
		Role:      data.Role,
		Name:      data.Name,
		TokenHash: tokenHash,
	}, nil
}

// DeleteSession removes a single session.
func (c *Cache) DeleteSession(ctx context.Context, tokenHash string, userID int64) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+tokenHash)
	if userID > 0 {
		pipe.SRem(ctx, userSessionsKey(userID), tokenHash)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions revokes every session of a user. Used after role
// changes and account deletion.
func (c *Cache) DeleteUserSessions(ctx context.Context, userID int64) (int, error) {
	idx := userSessionsKey(userID)
	hashes, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionKeyPrefix+h)
	}
	keys = append(keys, idx)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return len(hashes), nil
}

// ConsumeOAuthState marks an OAuth state nonce as used. It reports false
// when the nonce was already consumed.
func (c *Cache) ConsumeOAuthState(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, oauthStateKeyPrefix+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return ok, nil
}
