package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/quantcore/internal/api"
)

func TestLRUWithTTL_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](3, 0)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	_, _ = c.Get("a")
	c.Set("d", 4) // evicts b

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(1), c.Stats().Evicted)
}

func TestLRUWithTTL_Expiration(t *testing.T) {
	c, err := NewLRUWithTTL[string, string](10, 30*time.Millisecond)
	require.NoError(t, err)

	c.Set("k", "v")
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry removed on access")
}

func TestLRUWithTTL_Stats(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](5, 0)
	require.NoError(t, err)

	c.Set("k1", 1)
	c.Set("k2", 2)
	c.Get("k1")
	c.Get("k1")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 2, s.Size)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestLRUWithTTL_CleanupExpired(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](10, 30*time.Millisecond)
	require.NoError(t, err)
	c.Set("k1", 1)
	c.Set("k2", 2)
	c.Set("k3", 3)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 3, c.CleanupExpired())
	assert.Equal(t, 0, c.Len())
}

func TestLRUWithTTL_InvalidSize(t *testing.T) {
	_, err := NewLRUWithTTL[string, int](0, 0)
	assert.Error(t, err)
}

func TestEnvelopeCacheKeysByOp(t *testing.T) {
	c, err := NewEnvelopeCache(10, time.Minute)
	require.NoError(t, err)

	c.Set(api.OpForecast, "fp", []byte(`{"confidence":0.5}`))
	body, ok := c.Get(api.OpForecast, "fp")
	require.True(t, ok)
	assert.JSONEq(t, `{"confidence":0.5}`, string(body))

	_, ok = c.Get(api.OpSimulate, "fp")
	assert.False(t, ok)
}

func TestEnvelopeCacheJanitorStops(t *testing.T) {
	c, err := NewEnvelopeCache(10, 10*time.Millisecond)
	require.NoError(t, err)
	c.Set(api.OpForecast, "fp", []byte("{}"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.lru.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
