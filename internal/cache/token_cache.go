package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/model"
)

// TokenCache holds the hot snapshot of the current rotating token per
// session, serving the display poll path without a database read.
type TokenCache interface {
	Set(ctx context.Context, sessionID string, snapshot *model.TokenSnapshot) error
	Get(ctx context.Context, sessionID string) (*model.TokenSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type tokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenCache creates a new token cache
func NewTokenCache(client *redis.Client) TokenCache {
	return &tokenCache{
		client: client,
		ttl:    10 * time.Minute, // Refreshed on every rotation
	}
}

func (c *tokenCache) key(sessionID string) string {
	return fmt.Sprintf("token:%s", sessionID)
}

func (c *tokenCache) Set(ctx context.Context, sessionID string, snapshot *model.TokenSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID), data, c.ttl).Err()
}

func (c *tokenCache) Get(ctx context.Context, sessionID string) (*model.TokenSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot model.TokenSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *tokenCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
