package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[server]
port = 9090
read_timeout = "3s"

[store]
backend = "redis"
redis_addr = "cache:6379"
cache_ttl = "90s"

[[rate_limit.tenants]]
id = "acme"
requests_per_second = 5.0
daily_quota = 1000
active = true

[defaults]
horizon = 14
max_lag = 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Duration, "unset keys keep defaults")
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Store.CacheTTL.Duration)
	require.Len(t, cfg.RateLimit.Tenants, 1)
	assert.Equal(t, int64(1000), cfg.RateLimit.Tenants[0].DailyQuota)
	assert.Equal(t, 14, cfg.Defaults.ForecastParams().Horizon)
	assert.Equal(t, 5, cfg.Defaults.CausalParams().MaxLag)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QC_PORT", "7070")
	t.Setenv("QC_STORE_BACKEND", "postgres")
	t.Setenv("QC_POSTGRES_CONN", "postgres://localhost/qc")
	t.Setenv("QC_OTEL_ENDPOINT", "collector:4317")
	t.Setenv("QC_LOG_LEVEL", "debug")

	cfg, err := Load(writeFile(t, "[server]\nport = 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/qc", cfg.Store.DedupOptions().PostgresConn)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.CollectorEndpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad toml", "[server\nport = 1"},
		{"bad duration", "[server]\nread_timeout = \"soon\""},
		{"port", "[server]\nport = 70000"},
		{"backend", "[store]\nbackend = \"etcd\""},
		{"postgres without conn", "[store]\nbackend = \"postgres\""},
		{"log level", "[logging]\nlevel = \"chatty\""},
		{"metric", "[defaults]\ndistance_metric = \"hamming\""},
		{"confidence", "[defaults]\nconfidence_level = 1.5"},
		{"max lag", "[defaults]\nmax_lag = 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultsPointsOptions(t *testing.T) {
	d := Default().Defaults
	d.K = 4
	d.OutlierThreshold = 2.5

	opts := d.PointsOptions()
	assert.Equal(t, 4, opts.Clustering.K)
	assert.Equal(t, "euclidean", opts.Clustering.DistanceMetric)
	require.NotNil(t, opts.OutlierDetection)
	assert.InDelta(t, 2.5, opts.OutlierDetection.Threshold, 0)
	require.NotNil(t, opts.DimensionReduction)
	assert.False(t, opts.DimensionReduction.Enabled)
	assert.Equal(t, 2, opts.DimensionReduction.Components)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	require.Len(t, cfg.RateLimit.Tenants, 1)
	assert.Equal(t, "analytics", cfg.RateLimit.Tenants[0].ID)
	assert.True(t, cfg.RateLimit.Tenants[0].Active)
	assert.Equal(t, Default().Defaults, cfg.Defaults, "shipped defaults match the built-in ones")
	assert.Equal(t, Default().Auth, cfg.Auth)
}

func TestRedisShardsFromEnv(t *testing.T) {
	t.Setenv("QC_STORE_BACKEND", "redis")
	t.Setenv("QC_REDIS_SHARDS", "r0:6379,r1:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r0:6379", "r1:6379"}, cfg.Store.RedisShards)
	assert.Equal(t, []string{"r0:6379", "r1:6379"}, cfg.Store.DedupOptions().RedisShards)
}
