// Package cache provides the proof cache used by the composer to coalesce
// repeated generation requests. Backends: an in-process TTL map and Redis.
package cache

import (
	"context"
	"time"

	"SIP-Compose/pkg/proof"
)

// Stats summarises cache effectiveness.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// HitRate returns the fraction of lookups served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache stores generated proofs keyed by their proving statement. Entries
// expire after their TTL; expired entries behave as misses.
type Cache interface {
	Get(ctx context.Context, key string) (*proof.SingleProof, bool, error)
	Set(ctx context.Context, key string, p *proof.SingleProof, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
