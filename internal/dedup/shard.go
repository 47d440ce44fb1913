package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultVirtualNodes is the number of ring points per shard.
const DefaultVirtualNodes = 128

// ErrNoHealthyShard is returned when every shard is marked down.
var ErrNoHealthyShard = errors.New("no healthy result store shard")

// Shard is one backend on the ring.
type Shard struct {
	Name  string
	Store Store

	healthy bool
}

// Ring places shards on a consistent hash ring so that adding or removing a
// shard only moves the keys adjacent to its virtual nodes.
type Ring struct {
	mu     sync.RWMutex
	shards []*Shard
	vnodes int
	points []uint32
	owner  map[uint32]*Shard
}

// NewRing creates an empty ring. vnodes <= 0 selects DefaultVirtualNodes.
func NewRing(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	return &Ring{vnodes: vnodes, owner: make(map[uint32]*Shard)}
}

func ringHash(key string) uint32 {
	h := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint32(h[:4])
}

// Add places a healthy shard on the ring.
func (r *Ring) Add(name string, store Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.shards {
		if s.Name == name {
			return fmt.Errorf("shard %q already on the ring", name)
		}
	}
	shard := &Shard{Name: name, Store: store, healthy: true}
	r.shards = append(r.shards, shard)
	for i := 0; i < r.vnodes; i++ {
		h := ringHash(name + "#" + strconv.Itoa(i))
		if _, taken := r.owner[h]; taken {
			continue
		}
		r.owner[h] = shard
		r.points = append(r.points, h)
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i] < r.points[j] })
	return nil
}

// SetHealthy marks a shard up or down. Keys owned by a down shard fall
// through to the next healthy shard clockwise.
func (r *Ring) SetHealthy(name string, healthy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shards {
		if s.Name == name {
			s.healthy = healthy
			return nil
		}
	}
	return fmt.Errorf("shard %q not found", name)
}

// Pick returns the shard owning key.
func (r *Ring) Pick(key string) (*Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return nil, ErrNoHealthyShard
	}
	h := ringHash(key)
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	for i := 0; i < len(r.points); i++ {
		s := r.owner[r.points[(idx+i)%len(r.points)]]
		if s.healthy {
			return s, nil
		}
	}
	return nil, ErrNoHealthyShard
}

// Shards returns the shards in insertion order.
func (r *Ring) Shards() []*Shard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Shard, len(r.shards))
	copy(out, r.shards)
	return out
}

// ShardedStore spreads results over several stores by fingerprint.
type ShardedStore struct {
	ring *Ring
}

// NewShardedStore wraps a populated ring.
func NewShardedStore(ring *Ring) *ShardedStore {
	return &ShardedStore{ring: ring}
}

// Ring exposes the ring for health management.
func (s *ShardedStore) Ring() *Ring {
	return s.ring
}

func (s *ShardedStore) Get(ctx context.Context, key string) ([]byte, error) {
	shard, err := s.ring.Pick(key)
	if err != nil {
		return nil, err
	}
	data, err := shard.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("shard %s: %w", shard.Name, err)
	}
	return data, nil
}

func (s *ShardedStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	shard, err := s.ring.Pick(key)
	if err != nil {
		return err
	}
	if err := shard.Store.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("shard %s: %w", shard.Name, err)
	}
	return nil
}

func (s *ShardedStore) Close() error {
	var errs []error
	for _, shard := range s.ring.Shards() {
		if err := shard.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %s: %w", shard.Name, err))
		}
	}
	return errors.Join(errs...)
}

// openRedisShards connects one RedisStore per address. Shards are named by
// address so the ring layout survives reordering in the config.
func openRedisShards(ctx context.Context, opts Options) (*ShardedStore, error) {
	return openShards(opts.RedisShards, opts.VirtualNodes, func(addr string) (Store, error) {
		return NewRedisStore(ctx, addr, opts.RedisPassword, opts.RedisDB)
	})
}

// openShards dials each address onto a fresh ring. On any failure every
// store opened so far is closed, including one the ring refused.
func openShards(addrs []string, vnodes int, dial func(addr string) (Store, error)) (*ShardedStore, error) {
	ring := NewRing(vnodes)
	closeAll := func() {
		for _, s := range ring.Shards() {
			s.Store.Close()
		}
	}
	for _, addr := range addrs {
		store, err := dial(addr)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("shard %s: %w", addr, err)
		}
		if err := ring.Add(addr, store); err != nil {
			store.Close()
			closeAll()
			return nil, fmt.Errorf("shard %s: %w", addr, err)
		}
	}
	return NewShardedStore(ring), nil
}
