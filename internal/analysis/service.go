// Package analysis is the service façade over the point analyzer, the
// forecast engine and the causal reasoner. Every operation goes through the
// same pipeline: fingerprint, hot cache, result store, compute, envelope,
// store, metrics, event.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/auth"
	"github.com/fractal-lba/quantcore/internal/cache"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/dedup"
	"github.com/fractal-lba/quantcore/internal/events"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/graphstore"
	"github.com/fractal-lba/quantcore/internal/metrics"
	"github.com/fractal-lba/quantcore/internal/points"
	"github.com/fractal-lba/quantcore/pkg/canonical"
	"github.com/fractal-lba/quantcore/pkg/otel"
)

// DefaultResultTTL is used when Deps.ResultTTL is zero.
const DefaultResultTTL = 24 * time.Hour

// Deps wires a Service. Only the three engines are required; nil sinks are
// replaced with no-ops.
type Deps struct {
	Analyzer *points.Analyzer
	Engine   *forecast.Engine
	Reasoner *causal.Reasoner

	Cache     *cache.EnvelopeCache
	Store     dedup.Store
	ResultTTL time.Duration

	Metrics *metrics.Metrics
	Events  events.Publisher
	Graphs  graphstore.Store
	Logger  *zap.Logger
}

// Service runs analyses. It is safe for concurrent use.
type Service struct {
	analyzer *points.Analyzer
	engine   *forecast.Engine
	reasoner *causal.Reasoner

	cache    *cache.EnvelopeCache
	store    dedup.Store
	ttl      time.Duration
	metrics  *metrics.Metrics
	events   events.Publisher
	graphs   graphstore.Store
	logger   *zap.Logger
	defaults defaults
}

// defaults is folded into every fingerprint so results computed under
// different engine defaults never share a cache entry.
type defaults struct {
	Points   points.Options  `json:"points"`
	Forecast forecast.Params `json:"forecast"`
	Causal   causal.Params   `json:"causal"`
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Analyzer == nil {
		d.Analyzer = points.NewAnalyzer(points.DefaultOptions())
	}
	if d.Engine == nil {
		d.Engine = forecast.NewEngine(forecast.DefaultParams())
	}
	if d.Reasoner == nil {
		d.Reasoner = causal.NewReasoner(causal.DefaultParams())
	}
	if d.ResultTTL <= 0 {
		d.ResultTTL = DefaultResultTTL
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Graphs == nil {
		d.Graphs = graphstore.NopStore{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		analyzer: d.Analyzer,
		engine:   d.Engine,
		reasoner: d.Reasoner,
		cache:    d.Cache,
		store:    d.Store,
		ttl:      d.ResultTTL,
		metrics:  d.Metrics,
		events:   d.Events,
		graphs:   d.Graphs,
		logger:   d.Logger,
		defaults: defaults{
			Points:   d.Analyzer.Defaults(),
			Forecast: d.Engine.Params(),
			Causal:   d.Reasoner.Params(),
		},
	}
}

// ForecastParams returns the forecast engine defaults the service runs with.
func (s *Service) ForecastParams() forecast.Params {
	return s.defaults.Forecast
}

type requestIDKey struct{}

// WithRequestID attaches the transport request ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID bound to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// call describes one operation for run.
type call[T any] struct {
	op        api.Op
	request   any
	validate  func() error
	inputSize int
	// cacheable is false when the result depends on an unseeded draw.
	cacheable bool
	compute   func(ctx context.Context) (T, float64, error)
	// observe records domain metrics and span attributes for a fresh result.
	observe func(result T) []attribute.KeyValue
	// after runs once the envelope is built, for sinks beyond the event.
	after func(ctx context.Context, ev events.Event, result T)
}

func run[T any](ctx context.Context, s *Service, c call[T]) (*api.Envelope[T], error) {
	start := time.Now()
	op := string(c.op)
	tenantID := auth.TenantID(ctx)
	reqID := RequestID(ctx)
	log := s.logger.With(zap.String("op", op), zap.String("tenant_id", tenantID), zap.String("request_id", reqID))

	s.metrics.Requests.WithLabelValues(op, tenantID).Inc()

	if c.validate != nil {
		if err := c.validate(); err != nil {
			s.metrics.ObserveError(op, true)
			return nil, err
		}
	}

	fp, err := canonical.Fingerprint(op, struct {
		Request  any      `json:"request"`
		Defaults defaults `json:"defaults"`
	}{c.request, s.defaults})
	if err != nil {
		s.metrics.ObserveError(op, true)
		return nil, fmt.Errorf("%w: %v", api.ErrInvalidRequest, err)
	}
	log = log.With(zap.String("fingerprint", fp))

	if c.cacheable {
		if env, ok := s.lookup(ctx, c.op, fp, log); ok {
			out := new(api.Envelope[T])
			if err := json.Unmarshal(env, out); err == nil {
				out.Cached = true
				out.RequestID = reqID
				return out, nil
			}
			log.Warn("discarding undecodable cached result")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spanCtx, span := otel.StartSpan(ctx, op, otel.AnalysisAttributes(op, fp, c.inputSize)...)
	defer span.End()
	span.SetAttributes(otel.TenantAttributes(tenantID, "")...)

	result, confidence, err := c.compute(spanCtx)
	if err != nil {
		input := api.IsInputError(err)
		s.metrics.ObserveError(op, input)
		otel.RecordError(span, err)
		if !input {
			log.Error("analysis failed", zap.Error(err))
		}
		return nil, err
	}

	env := api.NewEnvelope(result, confidence, start)
	env.Fingerprint = fp

	if c.cacheable {
		s.remember(ctx, c.op, fp, env, log)
	}

	elapsed := time.Since(start)
	s.metrics.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
	s.metrics.Confidence.WithLabelValues(op).Observe(confidence)
	span.SetAttributes(otel.AttrConfidence.Float64(confidence))
	if c.observe != nil {
		span.SetAttributes(c.observe(result)...)
	}

	ev := events.NewEvent(op, tenantID, fp)
	ev.RequestID = reqID
	ev.Confidence = confidence
	ev.DurationMs = env.ProcessingTimeMs
	if err := s.events.Publish(ctx, ev); err != nil {
		s.metrics.EventErrors.Inc()
		log.Warn("event publish failed", zap.Error(err))
	}
	if c.after != nil {
		c.after(ctx, ev, result)
	}

	log.Debug("analysis complete", zap.Duration("duration", elapsed), zap.Float64("confidence", confidence))

	env.RequestID = reqID
	return env, nil
}

// lookup checks the hot cache, then the result store.
func (s *Service) lookup(ctx context.Context, op api.Op, fp string, log *zap.Logger) ([]byte, bool) {
	if s.cache != nil {
		if body, ok := s.cache.Get(op, fp); ok {
			s.metrics.CacheHits.WithLabelValues(string(op), "hot").Inc()
			return body, true
		}
	}
	if s.store == nil {
		return nil, false
	}
	body, err := s.store.Get(ctx, fp)
	if err != nil {
		s.metrics.StoreErrors.Inc()
		log.Warn("result store read failed", zap.Error(err))
		return nil, false
	}
	if body == nil {
		return nil, false
	}
	s.metrics.CacheHits.WithLabelValues(string(op), "store").Inc()
	if s.cache != nil {
		s.cache.Set(op, fp, body)
	}
	return body, true
}

// remember writes a fresh envelope to both tiers. The stored copy carries
// no request ID.
func (s *Service) remember(ctx context.Context, op api.Op, fp string, env any, log *zap.Logger) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Warn("result not cacheable", zap.Error(err))
		return
	}
	if s.cache != nil {
		s.cache.Set(op, fp, body)
	}
	if s.store != nil {
		if err := s.store.Set(ctx, fp, body, s.ttl); err != nil {
			s.metrics.StoreErrors.Inc()
			log.Warn("result store write failed", zap.Error(err))
		}
	}
}
