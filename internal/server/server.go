// Package server exposes the analysis service over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fractal-lba/quantcore/internal/analysis"
	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/auth"
	"github.com/fractal-lba/quantcore/internal/metrics"
	"github.com/fractal-lba/quantcore/internal/tenant"
	"github.com/fractal-lba/quantcore/internal/wal"
)

// DefaultMaxBodyBytes caps request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 4 << 20

// Options are the transport settings.
type Options struct {
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	CORSOrigins     []string
	Auth            auth.Config
	GlobalRPS       float64 // 0 = unlimited
	GlobalBurst     int
	MetricsUser     string
	MetricsPassword string
}

// Deps wires a Server. Journal and Tenants may be nil.
type Deps struct {
	Service  *analysis.Service
	Journal  *wal.Journal
	Tenants  *tenant.Manager
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Options  Options
}

// Server routes HTTP requests to the analysis service.
type Server struct {
	svc      *analysis.Service
	journal  *wal.Journal
	tenants  *tenant.Manager
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	opts     Options
}

// New creates a Server.
func New(d Deps) *Server {
	if d.Options.MaxBodyBytes <= 0 {
		d.Options.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		reg := prometheus.NewRegistry()
		d.Metrics = metrics.New(reg)
		if d.Gatherer == nil {
			d.Gatherer = reg
		}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Service == nil {
		d.Service = analysis.New(analysis.Deps{Metrics: d.Metrics, Logger: d.Logger})
	}

	s := &Server{
		svc:      d.Service,
		journal:  d.Journal,
		tenants:  d.Tenants,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		logger:   d.Logger,
		opts:     d.Options,
	}
	if d.Options.GlobalRPS > 0 {
		burst := d.Options.GlobalBurst
		if burst <= 0 {
			burst = int(d.Options.GlobalRPS) * 2
		}
		s.limiter = rate.NewLimiter(rate.Limit(d.Options.GlobalRPS), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Tenant-ID"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.opts.Auth))
		r.Use(s.globalLimit)
		r.Use(s.tenantLimit)
		if s.opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))
		}

		r.Post("/points/analyze", handle(s, api.OpAnalyzePoints, s.svc.AnalyzePoints))
		r.Post("/forecast", handle(s, api.OpForecast, s.svc.Forecast))
		r.Post("/scenarios/simulate", handle(s, api.OpSimulate, s.simulate))
		r.Post("/causal/discover", handle(s, api.OpDiscover, s.svc.DiscoverCausalGraph))
		r.Post("/causal/intervention", handle(s, api.OpIntervention, s.svc.AnalyzeIntervention))
		r.Post("/causal/counterfactual", handle(s, api.OpCounterfactual, s.svc.AnalyzeCounterfactual))
		r.Post("/causal/root-causes", handle(s, api.OpRootCauses, s.svc.RankRootCauses))
		r.Get("/usage", s.handleUsage)
	})

	return r
}

// metricsHandler serves Prometheus metrics, behind basic auth when a user
// is configured.
func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	if s.opts.MetricsUser == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.opts.MetricsUser || pass != s.opts.MetricsPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
