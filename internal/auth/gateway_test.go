package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractal-lba/quantcore/internal/api"
)

type captured struct {
	tenant string
	user   string
	scopes []string
	called bool
}

func serve(t *testing.T, cfg Config, path string, headers map[string]string) (*httptest.ResponseRecorder, *captured) {
	t.Helper()
	c := &captured{}
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.tenant = TenantID(r.Context())
		c.user, _ = UserID(r.Context())
		c.scopes = Scopes(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, c
}

func enabled() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

func TestMiddlewareDisabledUsesDefaultTenant(t *testing.T) {
	rec, c := serve(t, DefaultConfig(), "/v1/forecast", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "default", c.tenant)
}

func TestMiddlewareRejects(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		headers map[string]string
		status  int
	}{
		{"not verified", enabled(), map[string]string{"X-Tenant-ID": "acme"}, http.StatusUnauthorized},
		{"missing tenant", enabled(), map[string]string{"X-Auth-Verified": "true"}, http.StatusUnauthorized},
		{"missing scope", func() Config { c := enabled(); c.RequiredScope = "analysis"; return c }(),
			map[string]string{"X-Auth-Verified": "true", "X-Tenant-ID": "acme", "X-Scopes": "read"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, c := serve(t, tt.cfg, "/v1/forecast", tt.headers)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, c.called)

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMiddlewareBindsClaims(t *testing.T) {
	cfg := enabled()
	cfg.RequiredScope = "analysis"

	rec, c := serve(t, cfg, "/v1/forecast", map[string]string{
		"X-Auth-Verified": "true",
		"X-Tenant-ID":     "acme",
		"X-User-ID":       "u-1",
		"X-Scopes":        `["read","analysis"]`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", c.tenant)
	assert.Equal(t, "u-1", c.user)
	assert.Equal(t, []string{"read", "analysis"}, c.scopes)
}

func TestMiddlewareBypassPaths(t *testing.T) {
	rec, c := serve(t, enabled(), "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, c.called)
}

func TestParseScopes(t *testing.T) {
	assert.Nil(t, parseScopes(""))
	assert.Equal(t, []string{"a", "b"}, parseScopes(`["a","b"]`))
	assert.Equal(t, []string{"a", "b"}, parseScopes(" a, b ,"))
}
