// Package tenant enforces per-tenant request rates and daily analysis quotas.
package tenant

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantInactive  = errors.New("tenant inactive")
	ErrQuotaExceeded   = errors.New("tenant quota exceeded")
	ErrRateLimited     = errors.New("tenant rate limit exceeded")
	ErrInvalidTenantID = errors.New("invalid tenant ID")
)

// DefaultTenantID is used when the gateway does not forward a tenant.
const DefaultTenantID = "default"

// Tenant is one isolated consumer of the analysis API.
type Tenant struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`

	// Limits
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	DailyQuota        int64   `toml:"daily_quota"` // 0 = unlimited

	// MaxIterations caps Monte Carlo draws for this tenant (0 = engine limit).
	MaxIterations int `toml:"max_iterations"`

	Active    bool              `toml:"active"`
	CreatedAt time.Time         `toml:"-"`
	Metadata  map[string]string `toml:"metadata"`
}

// Usage is a tenant's consumption in the current quota window.
type Usage struct {
	TenantID  string    `json:"tenant_id"`
	Count     int64     `json:"count"`
	Quota     int64     `json:"quota"`
	ResetAt   time.Time `json:"reset_at"`
	Remaining int64     `json:"remaining"` // -1 when unlimited
}

type window struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
}

// roll starts a new window if the current one has elapsed. Caller holds mu.
func (w *window) roll(now time.Time) {
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(24 * time.Hour)
	}
}

// Manager tracks registered tenants with their limiters and quota windows.
type Manager struct {
	mu       sync.RWMutex
	tenants  map[string]*Tenant
	limiters map[string]*rate.Limiter
	windows  map[string]*window

	now func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		tenants:  make(map[string]*Tenant),
		limiters: make(map[string]*rate.Limiter),
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// Register adds or replaces a tenant. Replacing resets its usage window.
func (m *Manager) Register(t *Tenant) error {
	if t == nil || t.ID == "" {
		return ErrInvalidTenantID
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}

	burst := t.Burst
	if burst <= 0 {
		burst = int(t.RequestsPerSecond) + 1
	}
	limit := rate.Limit(t.RequestsPerSecond)
	if t.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tenants[t.ID] = t
	m.limiters[t.ID] = rate.NewLimiter(limit, burst)
	m.windows[t.ID] = &window{resetAt: m.now().Add(24 * time.Hour)}
	return nil
}

// Get returns an active tenant.
func (m *Manager) Get(id string) (*Tenant, error) {
	m.mu.RLock()
	t, ok := m.tenants[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrTenantNotFound
	}
	if !t.Active {
		return nil, fmt.Errorf("%w: %s", ErrTenantInactive, id)
	}
	return t, nil
}

// Allow admits one request for the tenant or returns why it cannot.
// Rate is checked before quota so throttled requests do not consume quota.
func (m *Manager) Allow(id string) error {
	m.mu.RLock()
	t, ok := m.tenants[id]
	limiter := m.limiters[id]
	w := m.windows[id]
	m.mu.RUnlock()

	if !ok {
		return ErrTenantNotFound
	}
	if !t.Active {
		return fmt.Errorf("%w: %s", ErrTenantInactive, id)
	}
	if !limiter.Allow() {
		return ErrRateLimited
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.roll(m.now())
	if t.DailyQuota > 0 && w.count >= t.DailyQuota {
		return ErrQuotaExceeded
	}
	w.count++
	return nil
}

// Usage reports consumption in the current window.
func (m *Manager) Usage(id string) (Usage, error) {
	m.mu.RLock()
	t, ok := m.tenants[id]
	w := m.windows[id]
	m.mu.RUnlock()

	if !ok {
		return Usage{}, ErrTenantNotFound
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.roll(m.now())

	u := Usage{TenantID: id, Count: w.count, Quota: t.DailyQuota, ResetAt: w.resetAt, Remaining: -1}
	if t.DailyQuota > 0 {
		u.Remaining = max(t.DailyQuota-w.count, 0)
	}
	return u, nil
}

// List returns all tenants ordered by ID.
func (m *Manager) List() []*Tenant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops a tenant and its usage.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tenants, id)
	delete(m.limiters, id)
	delete(m.windows, id)
}

// DefaultTenant serves requests that arrive without a tenant header.
func DefaultTenant() *Tenant {
	return &Tenant{
		ID:                DefaultTenantID,
		DisplayName:       "Default Tenant",
		RequestsPerSecond: 100,
		Burst:             200,
		Active:            true,
		Metadata:          map[string]string{},
	}
}
