package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/auth"
	"github.com/fractal-lba/quantcore/internal/cache"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/dedup"
	"github.com/fractal-lba/quantcore/internal/events"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/metrics"
	"github.com/fractal-lba/quantcore/internal/points"
	"github.com/fractal-lba/quantcore/internal/stats"
)

type savedGraph struct {
	runID string
	graph *causal.Graph
}

type graphRecorder struct {
	mu    sync.Mutex
	saved []savedGraph
	fail  error
}

func (g *graphRecorder) SaveGraph(_ context.Context, runID string, graph *causal.Graph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saved = append(g.saved, savedGraph{runID, graph})
	return g.fail
}

func (g *graphRecorder) Close(context.Context) error { return nil }

type fixture struct {
	svc     *Service
	store   *dedup.MemoryStore
	metrics *metrics.Metrics
	events  *events.Recorder
	graphs  *graphRecorder
}

func newFixture(t *testing.T, store *dedup.MemoryStore) *fixture {
	t.Helper()
	if store == nil {
		var err error
		store, err = dedup.NewMemoryStore(100, "")
		require.NoError(t, err)
	}
	hot, err := cache.NewEnvelopeCache(100, time.Minute)
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		metrics: metrics.New(prometheus.NewRegistry()),
		events:  &events.Recorder{},
		graphs:  &graphRecorder{},
	}
	f.svc = New(Deps{
		Cache:   hot,
		Store:   store,
		Metrics: f.metrics,
		Events:  f.events,
		Graphs:  f.graphs,
		Logger:  zaptest.NewLogger(t),
	})
	return f
}

func linearSeries(n int) []forecast.TimeSeriesPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]forecast.TimeSeriesPoint, n)
	for i := range out {
		out[i] = forecast.TimeSeriesPoint{Timestamp: start.AddDate(0, 0, i), Value: 10 + 2*float64(i)}
	}
	return out
}

func laggedSeries() map[string][]float64 {
	rng := stats.NewRand(17)
	x := make([]float64, 200)
	y := make([]float64, 200)
	for t := range x {
		x[t] = 2*rng.Float64() - 1
	}
	for t := range y {
		prev := 0.0
		if t > 0 {
			prev = x[t-1]
		}
		y[t] = 0.8*prev + 0.2*(2*rng.Float64()-1)
	}
	return map[string][]float64{"x": x, "y": y}
}

func clusteredPoints() []points.Point {
	var pts []points.Point
	for c, centre := range [][2]float64{{0, 0}, {50, 50}} {
		for i := 0; i < 6; i++ {
			pts = append(pts, points.Point{
				ID:         fmt.Sprintf("p%d-%d", c, i),
				Dimensions: map[string]float64{"x": centre[0] + float64(i%2), "y": centre[1] + float64(i%3)},
			})
		}
	}
	return pts
}

func TestForecastCachesInBothTiers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := WithRequestID(auth.WithTenantID(context.Background(), "acme"), "req-1")
	req := &api.ForecastRequest{Series: linearSeries(10), Options: forecast.Options{Horizon: 3}}

	first, err := f.svc.Forecast(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.Fingerprint)
	assert.Equal(t, "req-1", first.RequestID)
	require.Len(t, first.Result.Points, 3)
	assert.Equal(t, 1, f.store.Len())

	second, err := f.svc.Forecast(WithRequestID(ctx, "req-2"), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "req-2", second.RequestID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.InDelta(t, first.Confidence, second.Confidence, 1e-12)
	for i := range first.Result.Points {
		assert.InDelta(t, first.Result.Points[i].Value, second.Result.Points[i].Value, 1e-12)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHits.WithLabelValues("forecast", "hot")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("forecast", "acme")))

	// only the computed result emits an event
	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "acme", evs[0].TenantID)
	assert.Equal(t, "req-1", evs[0].RequestID)
	assert.Equal(t, first.Fingerprint, evs[0].Fingerprint)

	// a fresh process sharing the store hits the persistent tier
	g := newFixture(t, f.store)
	third, err := g.svc.Forecast(ctx, req)
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.CacheHits.WithLabelValues("forecast", "store")))
}

func TestUnseededRequestsAreNotCached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	unseeded := &api.PointsRequest{Points: clusteredPoints(), Options: points.Options{Clustering: points.ClusteringOptions{K: 2}}}
	for i := 0; i < 2; i++ {
		env, err := f.svc.AnalyzePoints(ctx, unseeded)
		require.NoError(t, err)
		assert.False(t, env.Cached)
		assert.Len(t, env.Result.Clusters, 2)
	}
	assert.Equal(t, 0, f.store.Len())

	seeded := &api.PointsRequest{Points: clusteredPoints(), Options: points.Options{Clustering: points.ClusteringOptions{K: 2}, Seed: 5}}
	_, err := f.svc.AnalyzePoints(ctx, seeded)
	require.NoError(t, err)
	env, err := f.svc.AnalyzePoints(ctx, seeded)
	require.NoError(t, err)
	assert.True(t, env.Cached)
	assert.Equal(t, 6.0, testutil.ToFloat64(f.metrics.Clusters), "cached results do not count")
}

func TestSimulateSeededIsReproducible(t *testing.T) {
	f := newFixture(t, nil)
	req := &api.SimulateRequest{Simulation: forecast.Simulation{
		Variables:  []forecast.Variable{{Name: "demand", Base: 100, Min: 80, Max: 120}},
		Iterations: 200,
		Seed:       3,
	}}

	env, err := f.svc.SimulateScenario(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, env.Result.Iterations)
	assert.Greater(t, env.Confidence, 0.0)
	assert.Equal(t, 200.0, testutil.ToFloat64(f.metrics.SimulationIterations))

	fresh := newFixture(t, nil)
	again, err := fresh.svc.SimulateScenario(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, env.Result.Statistics, again.Result.Statistics)
}

func TestInputErrorsAreCounted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Forecast(ctx, &api.ForecastRequest{Series: linearSeries(2)})
	assert.ErrorIs(t, err, forecast.ErrInsufficientData)

	_, err = f.svc.AnalyzePoints(ctx, &api.PointsRequest{
		Points:  clusteredPoints(),
		Options: points.Options{Clustering: points.ClusteringOptions{DistanceMetric: "hamming"}},
	})
	assert.ErrorIs(t, err, points.ErrUnknownMetric)
	assert.True(t, api.IsInputError(err))

	_, err = f.svc.RankRootCauses(ctx, &api.RootCauseRequest{Target: "z"})
	assert.ErrorIs(t, err, api.ErrInvalidRequest)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("forecast", "input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("analyze_points", "input")))
	assert.Empty(t, f.events.Events())
}

func TestCancelledContextSkipsCompute(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Forecast(ctx, &api.ForecastRequest{Series: linearSeries(10)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.store.Len())
}

func TestDiscoverExportsGraph(t *testing.T) {
	f := newFixture(t, nil)
	req := &api.DiscoverRequest{Series: laggedSeries()}

	env, err := f.svc.DiscoverCausalGraph(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, env.Result.Relationships)
	assert.Equal(t, causal.DiscoveryConfidence(env.Result), env.Confidence)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	require.Len(t, f.graphs.saved, 1)
	assert.Equal(t, evs[0].ID, f.graphs.saved[0].runID)

	// a cached discovery is not exported twice
	_, err = f.svc.DiscoverCausalGraph(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, f.graphs.saved, 1)
}

func TestGraphExportFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.graphs.fail = errors.New("neo4j down")

	_, err := f.svc.DiscoverCausalGraph(context.Background(), &api.DiscoverRequest{Series: laggedSeries()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GraphExportErrors))
}

func TestGraphOperationsFromSeries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	src := api.GraphSource{Series: laggedSeries()}

	iv, err := f.svc.AnalyzeIntervention(ctx, &api.InterventionRequest{GraphSource: src, Variable: "x", Value: 1})
	require.NoError(t, err)
	require.Len(t, iv.Result.DirectEffects, 1)
	assert.Equal(t, "y", iv.Result.DirectEffects[0].Variable)
	assert.Equal(t, iv.Result.EdgeConfidence, iv.Confidence)

	cf, err := f.svc.AnalyzeCounterfactual(ctx, &api.CounterfactualRequest{
		GraphSource: src,
		Changes:     []causal.Change{{Variable: "x", Value: 1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, cf.Result.Deltas)

	rc, err := f.svc.RankRootCauses(ctx, &api.RootCauseRequest{GraphSource: src, Target: "y"})
	require.NoError(t, err)
	require.Len(t, rc.Result.Causes, 1)
	assert.Equal(t, "x", rc.Result.Causes[0].Variable)

	_, err = f.svc.RankRootCauses(ctx, &api.RootCauseRequest{GraphSource: src, Target: "nope"})
	assert.ErrorIs(t, err, causal.ErrUnknownVariable)

	// graph-source operations never export
	assert.Empty(t, f.graphs.saved)
}

func TestFingerprintDependsOnDefaults(t *testing.T) {
	req := &api.ForecastRequest{Series: linearSeries(10)}

	a := New(Deps{})
	b := New(Deps{Engine: forecast.NewEngine(forecast.Params{Horizon: 14})})

	ea, err := a.Forecast(context.Background(), req)
	require.NoError(t, err)
	eb, err := b.Forecast(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, ea.Fingerprint, eb.Fingerprint)
	assert.Len(t, ea.Result.Points, 7)
	assert.Len(t, eb.Result.Points, 14)
}
