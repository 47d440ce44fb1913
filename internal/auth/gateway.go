// Package auth trusts identity headers forwarded by the API gateway.
//
// The gateway (Envoy/NGINX) verifies the caller's JWT and forwards its
// claims as headers. This middleware only accepts requests the gateway
// marked as verified, so tenants cannot be spoofed by direct callers.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/tenant"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	userIDKey   contextKey = "user_id"
	scopesKey   contextKey = "scopes"
)

// Config controls the gateway header check.
type Config struct {
	Enabled         bool     `toml:"enabled"`
	RequireVerified bool     `toml:"require_verified"`
	TenantIDHeader  string   `toml:"tenant_header"`
	UserIDHeader    string   `toml:"user_header"`
	ScopesHeader    string   `toml:"scopes_header"`
	VerifiedHeader  string   `toml:"verified_header"`
	RequiredScope   string   `toml:"required_scope"` // empty = any scope
	BypassPaths     []string `toml:"bypass_paths"`
}

// DefaultConfig returns production defaults. Auth is off until enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		RequireVerified: true,
		TenantIDHeader:  "X-Tenant-ID",
		UserIDHeader:    "X-User-ID",
		ScopesHeader:    "X-Scopes",
		VerifiedHeader:  "X-Auth-Verified",
		BypassPaths:     []string{"/health", "/metrics"},
	}
}

// Middleware binds the caller's tenant, user and scopes to the request
// context. When disabled every request runs as the default tenant.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tenant.DefaultTenantID)))
				return
			}
			if slices.Contains(cfg.BypassPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.RequireVerified && r.Header.Get(cfg.VerifiedHeader) != "true" {
				sendError(w, http.StatusUnauthorized, "unauthorized: gateway verification required")
				return
			}

			tenantID := r.Header.Get(cfg.TenantIDHeader)
			if tenantID == "" {
				sendError(w, http.StatusUnauthorized, "unauthorized: missing tenant claim")
				return
			}

			scopes := parseScopes(r.Header.Get(cfg.ScopesHeader))
			if cfg.RequiredScope != "" && !slices.Contains(scopes, cfg.RequiredScope) {
				sendError(w, http.StatusForbidden, "forbidden: missing scope "+cfg.RequiredScope)
				return
			}

			ctx := WithTenantID(r.Context(), tenantID)
			if userID := r.Header.Get(cfg.UserIDHeader); userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
			}
			if len(scopes) > 0 {
				ctx = context.WithValue(ctx, scopesKey, scopes)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseScopes accepts a JSON array or a comma-separated list.
func parseScopes(raw string) []string {
	if raw == "" {
		return nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(raw), &scopes); err == nil {
		return scopes
	}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// WithTenantID returns a context carrying tenantID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID returns the tenant bound to ctx, or the default tenant.
func TenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok && id != "" {
		return id
	}
	return tenant.DefaultTenantID
}

func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

func Scopes(ctx context.Context) []string {
	scopes, _ := ctx.Value(scopesKey).([]string)
	return scopes
}

func sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message, Status: status})
}
