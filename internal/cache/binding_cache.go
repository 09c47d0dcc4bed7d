package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BindingCache records the first device fingerprint seen for a subject in a
// session. Bind is the only write path and uses SETNX, so two concurrent
// first scans agree on a single winner.
type BindingCache interface {
	// Bind stores fingerprint for (sessionID, subjectID) unless a binding
	// already exists. It returns the bound fingerprint and whether this call
	// created the binding.
	Bind(ctx context.Context, sessionID, subjectID, fingerprint string) (string, bool, error)
	Get(ctx context.Context, sessionID, subjectID string) (string, error)
}

type bindingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBindingCache creates a new device binding cache
func NewBindingCache(client *redis.Client) BindingCache {
	return &bindingCache{
		client: client,
		ttl:    24 * time.Hour, // Bindings outlive the longest session
	}
}

func (c *bindingCache) key(sessionID, subjectID string) string {
	return fmt.Sprintf("binding:%s:%s", sessionID, subjectID)
}

func (c *bindingCache) Bind(ctx context.Context, sessionID, subjectID, fingerprint string) (string, bool, error) {
	key := c.key(sessionID, subjectID)
	set, err := c.client.SetNX(ctx, key, fingerprint, c.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if set {
		return fingerprint, true, nil
	}
	bound, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Binding expired between SETNX and GET; treat the caller as bound.
		return fingerprint, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return bound, false, nil
}

func (c *bindingCache) Get(ctx context.Context, sessionID, subjectID string) (string, error) {
	bound, err := c.client.Get(ctx, c.key(sessionID, subjectID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return bound, nil
}
