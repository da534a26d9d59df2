// Package toggle is a persistent feature-flag store backed by
// claims.toggle, read through a Redis cache so a hot-path check (e.g. "is
// the DHPO ack call enabled") never costs a database round trip.
package toggle

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = 30 * time.Second

// Store resolves toggle state, preferring Redis and falling back to
// Postgres (and repopulating the cache) on a miss.
type Store struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func New(pool *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{pool: pool, redis: redis}
}

func cacheKey(code string) string { return "toggle:" + code }

// Enabled reports whether the named toggle is on. A Redis miss or failure
// falls back to Postgres; an unknown code or a Postgres failure is treated
// as disabled — a missing flag must never silently enable a code path.
func (s *Store) Enabled(ctx context.Context, code string) bool {
	if v, err := s.redis.Get(ctx, cacheKey(code)).Result(); err == nil {
		return v == "1"
	}

	var enabled bool
	err := s.pool.QueryRow(ctx, `SELECT enabled FROM claims.toggle WHERE code = $1`, code).Scan(&enabled)
	if err != nil {
		return false
	}

	val := "0"
	if enabled {
		val = "1"
	}
	s.redis.Set(ctx, cacheKey(code), val, cacheTTL)
	return enabled
}

// Set updates a toggle's persisted value and invalidates its cache entry.
func (s *Store) Set(ctx context.Context, code string, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO claims.toggle (code, enabled, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (code) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()`,
		code, enabled)
	if err != nil {
		return fmt.Errorf("set toggle %q: %w", code, err)
	}
	s.redis.Del(ctx, cacheKey(code))
	return nil
}

// Status returns every known toggle's persisted value, for the admin
// introspection endpoint.
func (s *Store) Status(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, enabled FROM claims.toggle`)
	if err != nil {
		return nil, fmt.Errorf("query toggles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var code string
		var enabled bool
		if err := rows.Scan(&code, &enabled); err != nil {
			return nil, err
		}
		out[code] = enabled
	}
	return out, rows.Err()
}
