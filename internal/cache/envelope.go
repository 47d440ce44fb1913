package cache

import (
	"context"
	"time"

	"github.com/fractal-lba/quantcore/internal/api"
)

// Key identifies one cached result.
type Key struct {
	Op          api.Op
	Fingerprint string
}

// EnvelopeCache holds encoded result envelopes keyed by operation and
// request fingerprint.
type EnvelopeCache struct {
	lru *LRUWithTTL[Key, []byte]
}

// NewEnvelopeCache creates the hot tier. size <= 0 is rejected by the
// underlying LRU.
func NewEnvelopeCache(size int, ttl time.Duration) (*EnvelopeCache, error) {
	l, err := NewLRUWithTTL[Key, []byte](size, ttl)
	if err != nil {
		return nil, err
	}
	return &EnvelopeCache{lru: l}, nil
}

// Get returns the encoded envelope for op and fingerprint.
func (c *EnvelopeCache) Get(op api.Op, fingerprint string) ([]byte, bool) {
	return c.lru.Get(Key{Op: op, Fingerprint: fingerprint})
}

// Set stores an encoded envelope.
func (c *EnvelopeCache) Set(op api.Op, fingerprint string, body []byte) {
	c.lru.Set(Key{Op: op, Fingerprint: fingerprint}, body)
}

// Stats exposes the hit/miss counters.
func (c *EnvelopeCache) Stats() Stats {
	return c.lru.Stats()
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (c *EnvelopeCache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.lru.CleanupExpired()
		}
	}
}
