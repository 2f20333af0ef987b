// internal/cache/status.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/models"
)

// StatusCache caches decided applications so status lookups skip Postgres.
// A cache miss or Redis outage is never an error for the caller; the read
// path falls through to the store.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, log logger.Logger) *StatusCache {
	return &StatusCache{client: client, ttl: ttl, logger: log}
}

func statusKey(applicationID string) string {
	return fmt.Sprintf("prequal:application:%s", applicationID)
}

// Get returns the cached application, or (nil, nil) on a miss.
func (c *StatusCache) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	raw, err := c.client.Get(ctx, statusKey(applicationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("status cache read failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return nil, nil
	}

	var app models.Application
	if err := json.Unmarshal(raw, &app); err != nil {
		// Corrupt entry; drop it and treat as a miss.
		c.client.Del(ctx, statusKey(applicationID))
		return nil, nil
	}
	return &app, nil
}

// Set caches one application. Only terminal statuses are worth caching:
// a PENDING row is about to change, so it is stored with a short TTL to
// absorb polling without serving stale decisions for long.
func (c *StatusCache) Set(ctx context.Context, app *models.Application) {
	raw, err := json.Marshal(app)
	if err != nil {
		return
	}

	ttl := c.ttl
	if !app.Status.IsTerminal() {
		ttl = 5 * time.Second
	}

	if err := c.client.Set(ctx, statusKey(app.ID), raw, ttl).Err(); err != nil {
		c.logger.Warn("status cache write failed", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
	}
}
