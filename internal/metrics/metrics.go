package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quantcore"

// Metrics holds every Prometheus collector of the service.
type Metrics struct {
	Requests   *prometheus.CounterVec
	Errors     *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Confidence *prometheus.HistogramVec
	CacheHits  *prometheus.CounterVec

	// Domain counters
	Clusters             prometheus.Counter
	Outliers             prometheus.Counter
	ForecastPoints       prometheus.Counter
	SimulationIterations prometheus.Counter
	Relationships        prometheus.Counter

	// Infrastructure
	RateLimited       *prometheus.CounterVec
	JournalErrors     prometheus.Counter
	StoreErrors       prometheus.Counter
	EventErrors       prometheus.Counter
	GraphExportErrors prometheus.Counter
}

// New creates all collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Analysis requests received per operation and tenant",
		}, []string{"op", "tenant_id"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed analysis requests per operation and error kind (input, internal)",
		}, []string{"op", "kind"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time spent computing an analysis",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"op"}),
		Confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence",
			Help:      "Envelope confidence of computed results",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"op"}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Results served without recomputation, per tier (hot, store)",
		}, []string{"op", "tier"}),

		Clusters: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_total",
			Help:      "Clusters produced by point analyses",
		}),
		Outliers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outliers_total",
			Help:      "Outlier points flagged by point analyses",
		}),
		ForecastPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_points_total",
			Help:      "Forecast steps produced",
		}),
		SimulationIterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_iterations_total",
			Help:      "Monte Carlo draws executed",
		}),
		Relationships: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "causal_relationships_total",
			Help:      "Causal relationships retained by discovery",
		}),

		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit or quota",
		}, []string{"scope"}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Request journal write failures",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Result store read or write failures",
		}),
		EventErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Analysis event publish failures",
		}),
		GraphExportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_export_errors_total",
			Help:      "Causal graph export failures",
		}),
	}
}

// ObserveError counts a failure as input or internal.
func (m *Metrics) ObserveError(op string, input bool) {
	kind := "internal"
	if input {
		kind = "input"
	}
	m.Errors.WithLabelValues(op, kind).Inc()
}
