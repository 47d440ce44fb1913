package analysis

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/events"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/points"
	"github.com/fractal-lba/quantcore/pkg/otel"
)

// AnalyzePoints clusters the points and reports correlations, outliers and
// the optional reduction.
func (s *Service) AnalyzePoints(ctx context.Context, req *api.PointsRequest) (*api.Envelope[*points.Result], error) {
	return run(ctx, s, call[*points.Result]{
		op:        api.OpAnalyzePoints,
		request:   req,
		validate:  req.Validate,
		inputSize: len(req.Points),
		cacheable: !req.Randomized(),
		compute: func(context.Context) (*points.Result, float64, error) {
			r, err := s.analyzer.Analyze(req.Points, req.Options, nil)
			if err != nil {
				return nil, 0, err
			}
			return r, points.Confidence(r), nil
		},
		observe: func(r *points.Result) []attribute.KeyValue {
			s.metrics.Clusters.Add(float64(len(r.Clusters)))
			s.metrics.Outliers.Add(float64(len(r.Outliers)))
			return []attribute.KeyValue{
				otel.AttrClusters.Int(len(r.Clusters)),
				otel.AttrOutliers.Int(len(r.Outliers)),
			}
		},
	})
}

// Forecast projects a time series forward.
func (s *Service) Forecast(ctx context.Context, req *api.ForecastRequest) (*api.Envelope[*forecast.Result], error) {
	return run(ctx, s, call[*forecast.Result]{
		op:        api.OpForecast,
		request:   req,
		validate:  req.Validate,
		inputSize: len(req.Series),
		cacheable: true,
		compute: func(context.Context) (*forecast.Result, float64, error) {
			r, err := s.engine.Forecast(req.Series, req.Options)
			if err != nil {
				return nil, 0, err
			}
			return r, forecast.Confidence(r), nil
		},
		observe: func(r *forecast.Result) []attribute.KeyValue {
			s.metrics.ForecastPoints.Add(float64(len(r.Points)))
			return []attribute.KeyValue{
				otel.AttrMethod.String(string(r.Method)),
				otel.AttrHorizon.Int(len(r.Points)),
			}
		},
	})
}

// SimulateScenario runs a Monte Carlo simulation.
func (s *Service) SimulateScenario(ctx context.Context, req *api.SimulateRequest) (*api.Envelope[*forecast.SimulationResult], error) {
	return run(ctx, s, call[*forecast.SimulationResult]{
		op:        api.OpSimulate,
		request:   req,
		validate:  req.Validate,
		inputSize: len(req.Variables),
		cacheable: !req.Randomized(),
		compute: func(context.Context) (*forecast.SimulationResult, float64, error) {
			r, err := s.engine.Simulate(req.Simulation, nil)
			if err != nil {
				return nil, 0, err
			}
			return r, forecast.SimulationConfidence(r), nil
		},
		observe: func(r *forecast.SimulationResult) []attribute.KeyValue {
			s.metrics.SimulationIterations.Add(float64(r.Iterations))
			return []attribute.KeyValue{otel.AttrIterations.Int(r.Iterations)}
		},
	})
}

// DiscoverCausalGraph builds a causal graph from observed series and
// exports it to the graph store.
func (s *Service) DiscoverCausalGraph(ctx context.Context, req *api.DiscoverRequest) (*api.Envelope[*causal.Graph], error) {
	return run(ctx, s, call[*causal.Graph]{
		op:        api.OpDiscover,
		request:   req,
		validate:  req.Validate,
		inputSize: len(req.Series),
		cacheable: true,
		compute: func(context.Context) (*causal.Graph, float64, error) {
			g, err := s.reasoner.Discover(req.Series, req.Options)
			if err != nil {
				return nil, 0, err
			}
			return g, causal.DiscoveryConfidence(g), nil
		},
		observe: func(g *causal.Graph) []attribute.KeyValue {
			s.metrics.Relationships.Add(float64(len(g.Relationships)))
			return []attribute.KeyValue{otel.AttrRelationships.Int(len(g.Relationships))}
		},
		after: s.exportGraph,
	})
}

// exportGraph saves a freshly discovered graph under the event ID.
func (s *Service) exportGraph(ctx context.Context, ev events.Event, g *causal.Graph) {
	if err := s.graphs.SaveGraph(ctx, ev.ID, g); err != nil {
		s.metrics.GraphExportErrors.Inc()
		s.logger.Warn("graph export failed",
			zap.String("run_id", ev.ID),
			zap.String("fingerprint", ev.Fingerprint),
			zap.Error(err))
	}
}

// graphFor returns the supplied graph or discovers one from the series.
func (s *Service) graphFor(src *api.GraphSource) (*causal.Graph, error) {
	if src.Graph != nil {
		return src.Graph, nil
	}
	return s.reasoner.Discover(src.Series, src.Discovery)
}

func graphSize(src *api.GraphSource) int {
	if src.Graph != nil {
		return len(src.Graph.Variables)
	}
	return len(src.Series)
}

// AnalyzeIntervention propagates do(variable = value) downstream.
func (s *Service) AnalyzeIntervention(ctx context.Context, req *api.InterventionRequest) (*api.Envelope[*causal.InterventionResult], error) {
	return run(ctx, s, call[*causal.InterventionResult]{
		op:        api.OpIntervention,
		request:   req,
		validate:  req.Validate,
		inputSize: graphSize(&req.GraphSource),
		cacheable: true,
		compute: func(context.Context) (*causal.InterventionResult, float64, error) {
			g, err := s.graphFor(&req.GraphSource)
			if err != nil {
				return nil, 0, err
			}
			r, err := s.reasoner.Intervene(g, req.Variable, req.Value)
			if err != nil {
				return nil, 0, err
			}
			return r, r.EdgeConfidence, nil
		},
		observe: func(*causal.InterventionResult) []attribute.KeyValue {
			return []attribute.KeyValue{otel.AttrVariable.String(req.Variable)}
		},
	})
}

// AnalyzeCounterfactual applies the changes in order and compares the
// alternate outcome with the actual one.
func (s *Service) AnalyzeCounterfactual(ctx context.Context, req *api.CounterfactualRequest) (*api.Envelope[*causal.CounterfactualResult], error) {
	return run(ctx, s, call[*causal.CounterfactualResult]{
		op:        api.OpCounterfactual,
		request:   req,
		validate:  req.Validate,
		inputSize: graphSize(&req.GraphSource),
		cacheable: true,
		compute: func(context.Context) (*causal.CounterfactualResult, float64, error) {
			g, err := s.graphFor(&req.GraphSource)
			if err != nil {
				return nil, 0, err
			}
			r, err := s.reasoner.Counterfactual(g, req.Changes, req.Actual)
			if err != nil {
				return nil, 0, err
			}
			return r, r.EdgeConfidence, nil
		},
	})
}

// RankRootCauses ranks the upstream drivers of a target.
func (s *Service) RankRootCauses(ctx context.Context, req *api.RootCauseRequest) (*api.Envelope[*causal.RootCauseResult], error) {
	return run(ctx, s, call[*causal.RootCauseResult]{
		op:        api.OpRootCauses,
		request:   req,
		validate:  req.Validate,
		inputSize: graphSize(&req.GraphSource),
		cacheable: true,
		compute: func(context.Context) (*causal.RootCauseResult, float64, error) {
			g, err := s.graphFor(&req.GraphSource)
			if err != nil {
				return nil, 0, err
			}
			r, err := s.reasoner.RootCauses(g, req.Target)
			if err != nil {
				return nil, 0, err
			}
			return r, r.EdgeConfidence, nil
		},
		observe: func(*causal.RootCauseResult) []attribute.KeyValue {
			return []attribute.KeyValue{otel.AttrVariable.String(req.Target)}
		},
	})
}
