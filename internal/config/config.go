// Package config loads service configuration from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/fractal-lba/quantcore/internal/auth"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/dedup"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/logging"
	"github.com/fractal-lba/quantcore/internal/points"
	"github.com/fractal-lba/quantcore/internal/tenant"
	"github.com/fractal-lba/quantcore/pkg/otel"
)

// DefaultPath is read when QC_CONFIG is unset.
const DefaultPath = "config/quantcore.toml"

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	RequestTimeout  Duration `toml:"request_timeout"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	CORSOrigins     []string `toml:"cors_origins"`
	MetricsUser     string   `toml:"metrics_user"`
	MetricsPassword string   `toml:"metrics_password"`
}

type RateLimitConfig struct {
	GlobalRPS   float64         `toml:"global_rps"` // 0 = unlimited
	GlobalBurst int             `toml:"global_burst"`
	Tenants     []tenant.Tenant `toml:"tenants"`
}

type StoreConfig struct {
	Backend         string   `toml:"backend"`
	MaxEntries      int      `toml:"max_entries"`
	SnapshotPath    string   `toml:"snapshot_path"`
	RedisAddr       string   `toml:"redis_addr"`
	RedisPassword   string   `toml:"redis_password"`
	RedisDB         int      `toml:"redis_db"`
	RedisShards     []string `toml:"redis_shards"`
	VirtualNodes    int      `toml:"virtual_nodes"`
	PostgresConn    string   `toml:"postgres_conn"`
	ResultTTL       Duration `toml:"result_ttl"`
	CacheSize       int      `toml:"cache_size"`
	CacheTTL        Duration `toml:"cache_ttl"`
	JanitorInterval Duration `toml:"janitor_interval"`
}

// DedupOptions maps the section onto the store factory.
func (s StoreConfig) DedupOptions() dedup.Options {
	return dedup.Options{
		Backend:       s.Backend,
		MaxEntries:    s.MaxEntries,
		SnapshotPath:  s.SnapshotPath,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		RedisShards:   s.RedisShards,
		VirtualNodes:  s.VirtualNodes,
		PostgresConn:  s.PostgresConn,
	}
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	HMACKey string `toml:"hmac_key"` // empty = unsigned lines
}

type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty = events disabled
	Subject string `toml:"subject"`
}

type GraphConfig struct {
	Neo4jURI string `toml:"neo4j_uri"` // empty = export disabled
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// DefaultsConfig holds analysis defaults applied to unset request fields.
type DefaultsConfig struct {
	K                   int     `toml:"k"` // 0 = estimate
	DistanceMetric      string  `toml:"distance_metric"`
	OutlierThreshold    float64 `toml:"outlier_threshold"`
	ReductionComponents int     `toml:"reduction_components"`
	Horizon             int     `toml:"horizon"`
	ConfidenceLevel     float64 `toml:"confidence_level"`
	Iterations          int     `toml:"iterations"`
	MaxIterations       int     `toml:"max_iterations"`
	SignificanceLevel   float64 `toml:"significance_level"`
	MaxLag              int     `toml:"max_lag"`
	IncludeConfounders  bool    `toml:"include_confounders"`
}

// PointsOptions returns analyzer defaults.
func (d DefaultsConfig) PointsOptions() points.Options {
	opts := points.DefaultOptions()
	opts.Clustering.K = d.K
	if d.DistanceMetric != "" {
		opts.Clustering.DistanceMetric = d.DistanceMetric
	}
	if d.OutlierThreshold > 0 {
		opts.OutlierDetection.Threshold = d.OutlierThreshold
	}
	if d.ReductionComponents > 0 {
		opts.DimensionReduction = &points.ReductionOptions{Enabled: false, Components: d.ReductionComponents}
	}
	return opts
}

func (d DefaultsConfig) ForecastParams() forecast.Params {
	return forecast.Params{
		Horizon:         d.Horizon,
		ConfidenceLevel: d.ConfidenceLevel,
		Iterations:      d.Iterations,
		MaxIterations:   d.MaxIterations,
	}
}

func (d DefaultsConfig) CausalParams() causal.Params {
	return causal.Params{
		SignificanceLevel:  d.SignificanceLevel,
		MaxLag:             d.MaxLag,
		IncludeConfounders: d.IncludeConfounders,
	}
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      auth.Config     `toml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Store     StoreConfig     `toml:"store"`
	Journal   JournalConfig   `toml:"journal"`
	Telemetry otel.Config     `toml:"telemetry"`
	Events    EventsConfig    `toml:"events"`
	Graph     GraphConfig     `toml:"graph"`
	Logging   logging.Config  `toml:"logging"`
	Defaults  DefaultsConfig  `toml:"defaults"`
}

// Default returns a configuration that runs without external services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
			RequestTimeout:  Duration{30 * time.Second},
			MaxBodyBytes:    4 << 20,
			CORSOrigins:     []string{"*"},
		},
		Auth: auth.DefaultConfig(),
		RateLimit: RateLimitConfig{
			GlobalRPS:   100,
			GlobalBurst: 200,
		},
		Store: StoreConfig{
			Backend:         dedup.BackendMemory,
			MaxEntries:      dedup.DefaultMaxEntries,
			SnapshotPath:    "data/results.json",
			RedisAddr:       "localhost:6379",
			ResultTTL:       Duration{24 * time.Hour},
			CacheSize:       1024,
			CacheTTL:        Duration{10 * time.Minute},
			JanitorInterval: Duration{time.Minute},
		},
		Journal: JournalConfig{
			Enabled: true,
			Dir:     "data/journal",
		},
		Telemetry: otel.DefaultConfig("quantcore"),
		Events:    EventsConfig{Subject: "quantcore.analysis"},
		Graph:     GraphConfig{Username: "neo4j", Database: "neo4j"},
		Logging:   logging.DefaultConfig(),
		Defaults: DefaultsConfig{
			DistanceMetric:      points.MetricEuclidean,
			OutlierThreshold:    points.DefaultOutlierThreshold,
			ReductionComponents: points.DefaultReductionComponents,
			Horizon:             forecast.DefaultHorizon,
			ConfidenceLevel:     forecast.DefaultConfidenceLevel,
			Iterations:          forecast.DefaultIterations,
			MaxIterations:       forecast.MaxIterations,
			SignificanceLevel:   causal.DefaultSignificanceLevel,
			MaxLag:              causal.DefaultMaxLag,
			IncludeConfounders:  true,
		},
	}
}

// Load reads path over the defaults, applies QC_* environment overrides
// and validates. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PathFromEnv returns QC_CONFIG or DefaultPath.
func PathFromEnv() string {
	return getEnv("QC_CONFIG", DefaultPath)
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("QC_PORT", c.Server.Port)
	c.Server.MetricsUser = getEnv("QC_METRICS_USER", c.Server.MetricsUser)
	c.Server.MetricsPassword = getEnv("QC_METRICS_PASS", c.Server.MetricsPassword)

	c.Auth.Enabled = getEnvBool("QC_AUTH_ENABLED", c.Auth.Enabled)
	c.RateLimit.GlobalRPS = getEnvFloat("QC_GLOBAL_RPS", c.RateLimit.GlobalRPS)

	c.Store.Backend = getEnv("QC_STORE_BACKEND", c.Store.Backend)
	c.Store.SnapshotPath = getEnv("QC_SNAPSHOT_PATH", c.Store.SnapshotPath)
	c.Store.RedisAddr = getEnv("QC_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("QC_REDIS_PASSWORD", c.Store.RedisPassword)
	if shards := os.Getenv("QC_REDIS_SHARDS"); shards != "" {
		c.Store.RedisShards = strings.Split(shards, ",")
	}
	c.Store.PostgresConn = getEnv("QC_POSTGRES_CONN", c.Store.PostgresConn)

	c.Journal.Dir = getEnv("QC_JOURNAL_DIR", c.Journal.Dir)
	c.Journal.HMACKey = getEnv("QC_JOURNAL_HMAC_KEY", c.Journal.HMACKey)

	if ep := os.Getenv("QC_OTEL_ENDPOINT"); ep != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.CollectorEndpoint = ep
	}

	c.Events.NATSURL = getEnv("QC_NATS_URL", c.Events.NATSURL)
	c.Graph.Neo4jURI = getEnv("QC_NEO4J_URI", c.Graph.Neo4jURI)
	c.Graph.Username = getEnv("QC_NEO4J_USER", c.Graph.Username)
	c.Graph.Password = getEnv("QC_NEO4J_PASSWORD", c.Graph.Password)

	c.Logging.Level = getEnv("QC_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("QC_LOG_FORMAT", c.Logging.Format)
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	switch strings.ToLower(c.Store.Backend) {
	case dedup.BackendMemory, dedup.BackendRedis:
	case dedup.BackendPostgres:
		if c.Store.PostgresConn == "" {
			return errors.New("store.postgres_conn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend: %w: %q", dedup.ErrUnknownBackend, c.Store.Backend)
	}
	if c.Store.CacheSize <= 0 {
		return errors.New("store.cache_size must be positive")
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return errors.New("journal.dir is required when the journal is enabled")
	}
	if c.RateLimit.GlobalRPS < 0 {
		return errors.New("rate_limit.global_rps must be non-negative")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.sampling_rate %g not in [0,1]", c.Telemetry.SamplingRate)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if _, err := points.MetricByName(c.Defaults.DistanceMetric); err != nil {
		return fmt.Errorf("defaults.distance_metric: %w", err)
	}
	if cl := c.Defaults.ConfidenceLevel; cl <= 0 || cl >= 1 {
		return fmt.Errorf("defaults.confidence_level %g not in (0,1)", cl)
	}
	if c.Defaults.MaxIterations > forecast.MaxIterations {
		return fmt.Errorf("defaults.max_iterations above %d", forecast.MaxIterations)
	}
	if sl := c.Defaults.SignificanceLevel; sl <= 0 || sl >= 1 {
		return fmt.Errorf("defaults.significance_level %g not in (0,1)", sl)
	}
	if c.Defaults.MaxLag < 1 || c.Defaults.MaxLag > causal.MaxLagLimit {
		return fmt.Errorf("defaults.max_lag must be in 1..%d", causal.MaxLagLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
