// Package redisx constructs the shared go-redis client used by the toggle
// cache and the DHPO file registry.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

// New parses REDIS_URL and returns a ready client. Connection is lazy;
// call Ping to confirm reachability during startup/readiness checks.
func New(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Ping checks reachability with a short bounded timeout, used by the
// /readyz handler so a hung Redis never blocks that endpoint indefinitely.
func Ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}
