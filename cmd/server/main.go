package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fractal-lba/quantcore/internal/analysis"
	"github.com/fractal-lba/quantcore/internal/cache"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/config"
	"github.com/fractal-lba/quantcore/internal/dedup"
	"github.com/fractal-lba/quantcore/internal/events"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/graphstore"
	"github.com/fractal-lba/quantcore/internal/logging"
	"github.com/fractal-lba/quantcore/internal/metrics"
	"github.com/fractal-lba/quantcore/internal/points"
	"github.com/fractal-lba/quantcore/internal/server"
	"github.com/fractal-lba/quantcore/internal/tenant"
	"github.com/fractal-lba/quantcore/internal/wal"
	"github.com/fractal-lba/quantcore/pkg/otel"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := otel.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer otel.Shutdown(context.Background(), tp)

	// Result tiers
	store, err := dedup.Open(ctx, cfg.Store.DedupOptions())
	if err != nil {
		return fmt.Errorf("result store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("error closing result store", zap.Error(err))
		}
	}()
	if pg, ok := store.(*dedup.PostgresStore); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("result store schema: %w", err)
		}
	}

	hot, err := cache.NewEnvelopeCache(cfg.Store.CacheSize, cfg.Store.CacheTTL.Duration)
	if err != nil {
		return fmt.Errorf("envelope cache: %w", err)
	}
	go hot.RunJanitor(ctx, cfg.Store.JanitorInterval.Duration)

	// Journal
	var journal *wal.Journal
	if cfg.Journal.Enabled {
		journal, err = wal.Open(cfg.Journal.Dir, []byte(cfg.Journal.HMACKey))
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Warn("error closing journal", zap.Error(err))
			}
		}()
	}

	// Sinks
	publisher, err := events.New(events.Config{URL: cfg.Events.NATSURL, Subject: cfg.Events.Subject}, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	graphs, err := graphstore.New(ctx, graphstore.Config{
		URI:      cfg.Graph.Neo4jURI,
		Username: cfg.Graph.Username,
		Password: cfg.Graph.Password,
		Database: cfg.Graph.Database,
	})
	if err != nil {
		return err
	}
	defer graphs.Close(context.Background())

	// Tenants
	tenants := tenant.NewManager()
	if err := tenants.Register(tenant.DefaultTenant()); err != nil {
		return err
	}
	for i := range cfg.RateLimit.Tenants {
		t := cfg.RateLimit.Tenants[i]
		if err := tenants.Register(&t); err != nil {
			return fmt.Errorf("tenant %q: %w", t.ID, err)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := analysis.New(analysis.Deps{
		Analyzer:  points.NewAnalyzer(cfg.Defaults.PointsOptions()),
		Engine:    forecast.NewEngine(cfg.Defaults.ForecastParams()),
		Reasoner:  causal.NewReasoner(cfg.Defaults.CausalParams()),
		Cache:     hot,
		Store:     store,
		ResultTTL: cfg.Store.ResultTTL.Duration,
		Metrics:   m,
		Events:    publisher,
		Graphs:    graphs,
		Logger:    logger,
	})

	srv := server.New(server.Deps{
		Service:  svc,
		Journal:  journal,
		Tenants:  tenants,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
		Options: server.Options{
			MaxBodyBytes:    cfg.Server.MaxBodyBytes,
			RequestTimeout:  cfg.Server.RequestTimeout.Duration,
			CORSOrigins:     cfg.Server.CORSOrigins,
			Auth:            cfg.Auth,
			GlobalRPS:       cfg.RateLimit.GlobalRPS,
			GlobalBurst:     cfg.RateLimit.GlobalBurst,
			MetricsUser:     cfg.Server.MetricsUser,
			MetricsPassword: cfg.Server.MetricsPassword,
		},
	})

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("journal", journal != nil),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
