package api

import (
	"fmt"
	"time"

	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/points"
)

// Op names one analysis operation. It keys metrics, journal records,
// fingerprints and events.
type Op string

const (
	OpAnalyzePoints  Op = "analyze_points"
	OpForecast       Op = "forecast"
	OpSimulate       Op = "simulate_scenario"
	OpDiscover       Op = "discover_causal_graph"
	OpIntervention   Op = "analyze_intervention"
	OpCounterfactual Op = "analyze_counterfactual"
	OpRootCauses     Op = "rank_root_causes"
)

// Ops lists every operation in a stable order.
var Ops = []Op{OpAnalyzePoints, OpForecast, OpSimulate, OpDiscover, OpIntervention, OpCounterfactual, OpRootCauses}

// Envelope wraps every result with its confidence and timing.
type Envelope[T any] struct {
	Result           T         `json:"result"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	RequestID        string    `json:"request_id,omitempty"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Cached           bool      `json:"cached,omitempty"`
}

// NewEnvelope stamps a result with the time elapsed since start.
func NewEnvelope[T any](result T, confidence float64, start time.Time) *Envelope[T] {
	now := time.Now()
	return &Envelope[T]{
		Result:           result,
		Confidence:       confidence,
		Timestamp:        now.UTC(),
		ProcessingTimeMs: float64(now.Sub(start).Microseconds()) / 1000,
	}
}

// PointsRequest is the analyzePoints input.
type PointsRequest struct {
	Points []points.Point `json:"points"`
	points.Options
}

// Validate checks structure only; numeric checks happen in the analyzer.
func (r *PointsRequest) Validate() error {
	if len(r.Points) == 0 {
		return points.ErrEmptyInput
	}
	seen := make(map[string]struct{}, len(r.Points))
	for i, p := range r.Points {
		if p.ID == "" {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate point id %q at %d", ErrInvalidRequest, p.ID, i)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Randomized reports whether the result depends on a random draw that the
// request does not pin with a seed.
func (r *PointsRequest) Randomized() bool {
	return r.Seed == 0
}

// ForecastRequest is the forecast input.
type ForecastRequest struct {
	Series []forecast.TimeSeriesPoint `json:"historical_series"`
	forecast.Options
}

func (r *ForecastRequest) Validate() error {
	if len(r.Series) < forecast.MinHistory {
		return fmt.Errorf("%w: %d points (need at least %d)", forecast.ErrInsufficientData, len(r.Series), forecast.MinHistory)
	}
	return nil
}

// SimulateRequest is the simulateScenario input.
type SimulateRequest struct {
	forecast.Simulation
}

func (r *SimulateRequest) Validate() error {
	if len(r.Variables) == 0 {
		return forecast.ErrNoVariables
	}
	return nil
}

func (r *SimulateRequest) Randomized() bool {
	return r.Seed == 0
}

// DiscoverRequest is the discoverCausalGraph input.
type DiscoverRequest struct {
	Series map[string][]float64 `json:"series"`
	causal.Options
}

func (r *DiscoverRequest) Validate() error {
	if len(r.Series) == 0 {
		return causal.ErrNoSeries
	}
	return nil
}

// GraphSource is embedded by the graph-reasoning requests: either a graph
// from an earlier discovery or raw series to discover one from.
type GraphSource struct {
	Graph     *causal.Graph        `json:"graph,omitempty"`
	Series    map[string][]float64 `json:"series,omitempty"`
	Discovery causal.Options       `json:"discovery,omitempty"`
}

func (s *GraphSource) validate() error {
	if s.Graph == nil && len(s.Series) == 0 {
		return fmt.Errorf("%w: either graph or series is required", ErrInvalidRequest)
	}
	if s.Graph != nil && len(s.Series) > 0 {
		return fmt.Errorf("%w: graph and series are mutually exclusive", ErrInvalidRequest)
	}
	return nil
}

// InterventionRequest is the analyzeIntervention input.
type InterventionRequest struct {
	GraphSource
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
}

func (r *InterventionRequest) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if r.Variable == "" {
		return fmt.Errorf("%w: variable is required", ErrInvalidRequest)
	}
	return nil
}

// CounterfactualRequest is the analyzeCounterfactual input. Changes are
// applied in order.
type CounterfactualRequest struct {
	GraphSource
	Changes []causal.Change    `json:"changes"`
	Actual  map[string]float64 `json:"actual,omitempty"`
}

func (r *CounterfactualRequest) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if len(r.Changes) == 0 {
		return fmt.Errorf("%w: at least one change is required", ErrInvalidRequest)
	}
	for i, c := range r.Changes {
		if c.Variable == "" {
			return fmt.Errorf("%w: change %d has no variable", ErrInvalidRequest, i)
		}
	}
	return nil
}

// RootCauseRequest is the rankRootCauses input.
type RootCauseRequest struct {
	GraphSource
	Target string `json:"target"`
}

func (r *RootCauseRequest) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if r.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	return nil
}
