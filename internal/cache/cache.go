// Package cache provides a Redis-backed read-through cache for shared
// workflow lookups. The public share link is the one hot, unauthenticated
// read path, so it is the only thing cached; authenticated reads always go
// to the store because their callers may be about to submit a versioned
// update.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"flowstudio/backend/pkg/models"
)

// SharedTTL bounds staleness of cached shared workflows.
const SharedTTL = 5 * time.Minute

// SharedWorkflowCache caches workflows keyed by share token.
type SharedWorkflowCache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*SharedWorkflowCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &SharedWorkflowCache{client: client}, nil
}

// Get returns the cached workflow for a share token, or (nil, nil) on a miss.
// A nil cache is a valid no-op receiver so callers need no nil checks.
func (c *SharedWorkflowCache) Get(ctx context.Context, token string) (*models.Workflow, error) {
	if c == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, sharedKey(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var wf models.Workflow
	if err := json.Unmarshal([]byte(data), &wf); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &wf, nil
}

// Set stores the workflow under its share token with the shared TTL.
func (c *SharedWorkflowCache) Set(ctx context.Context, token string, wf *models.Workflow) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, sharedKey(token), data, SharedTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for a share token, e.g. after an update
// or delete of the underlying workflow.
func (c *SharedWorkflowCache) Invalidate(ctx context.Context, token string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, sharedKey(token)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *SharedWorkflowCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func sharedKey(token string) string {
	return "shared_workflow:" + token
}
