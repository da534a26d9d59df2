// Package dhpofetch schedules the delta-poll and fallback search-poll
// loops against the DHPO SOAP gateway, each tick fanning out across the
// active facilities, and hands each newly discovered file to the orchestrator.
package dhpofetch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FileRegistry memoizes which facility a DHPO fileId belongs to, backed by
// Redis so the mapping survives a process restart mid-download and so a
// duplicate GetNewTransactions hit across two poll cycles is recognized
// without re-querying Postgres.
type FileRegistry struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewFileRegistry(redis *redis.Client) *FileRegistry {
	return &FileRegistry{redis: redis, ttl: 7 * 24 * time.Hour}
}

func registryKey(fileID string) string { return "dhpo:file:" + fileID }

// Seen reports whether fileID has already been registered (and therefore
// already claimed by some facility's poll cycle).
func (r *FileRegistry) Seen(ctx context.Context, fileID string) (string, bool, error) {
	facility, err := r.redis.Get(ctx, registryKey(fileID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check file registry for %q: %w", fileID, err)
	}
	return facility, true, nil
}

// Register claims fileID for facilityCode, returning false if the file was
// already registered, by any facility or an earlier poll cycle (set-if-absent, so concurrent pollers
// racing on an overlapping window never double-register a file).
func (r *FileRegistry) Register(ctx context.Context, fileID, facilityCode string) (bool, error) {
	ok, err := r.redis.SetNX(ctx, registryKey(fileID), facilityCode, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("register file %q for %q: %w", fileID, facilityCode, err)
	}
	return ok, nil
}
