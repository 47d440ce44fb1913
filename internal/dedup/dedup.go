// Package dedup is the persistent idempotent result store. Results are
// stored as encoded envelopes under their request fingerprint; the first
// write for a key wins until it expires.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown result store backend")

// Store provides idempotent storage for analysis results.
type Store interface {
	// Get returns the stored bytes for key, or nil if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data with a TTL. First write wins.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Close releases resources.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	MaxEntries    int
	SnapshotPath  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisShards   []string // non-empty selects a sharded redis store
	VirtualNodes  int
	PostgresConn  string
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(opts.MaxEntries, opts.SnapshotPath)
	case BackendRedis:
		if len(opts.RedisShards) > 0 {
			return openRedisShards(ctx, opts)
		}
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.PostgresConn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// DefaultMaxEntries bounds the memory store when no size is configured.
const DefaultMaxEntries = 10_000

// MemoryStore is an LRU-bounded in-memory store with an optional JSON
// snapshot file loaded on start and written on Close.
type MemoryStore struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, entry]
	snapshot string
}

type entry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewMemoryStore creates a memory store. maxEntries <= 0 uses
// DefaultMaxEntries.
func NewMemoryStore(maxEntries int, snapshotPath string) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	m := &MemoryStore{entries: entries, snapshot: snapshotPath}
	if snapshotPath != "" {
		if err := m.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, ok := m.entries.Get(key)
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, nil
	}
	return e.Data, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries.Peek(key); ok && time.Now().Before(e.ExpiresAt) {
		return nil
	}
	m.entries.Add(key, entry{Data: data, ExpiresAt: time.Now().Add(ttl)})
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	return m.entries.Len()
}

func (m *MemoryStore) Close() error {
	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var snapshot map[string]entry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	now := time.Now()
	for k, v := range snapshot {
		if now.Before(v.ExpiresAt) {
			m.entries.Add(k, v)
		}
	}
	return nil
}

func (m *MemoryStore) saveSnapshot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	toSave := make(map[string]entry, m.entries.Len())
	for _, k := range m.entries.Keys() {
		if v, ok := m.entries.Peek(k); ok && now.Before(v.ExpiresAt) {
			toSave[k] = v
		}
	}

	data, err := json.Marshal(toSave)
	if err != nil {
		return err
	}
	return os.WriteFile(m.snapshot, data, 0600)
}
