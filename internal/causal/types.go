// Package causal discovers directed relationships between variables with a
// lagged-correlation stand-in for Granger tests, and evaluates
// interventions, counterfactuals and root causes over the resulting graph.
package causal

import "errors"

var (
	ErrNoSeries        = errors.New("no variable series supplied")
	ErrUnknownVariable = errors.New("unknown causal variable")
	ErrInvalidOptions  = errors.New("invalid causal options")
)

// VariableType is the inferred measurement scale.
type VariableType string

const (
	TypeBinary      VariableType = "binary"
	TypeCategorical VariableType = "categorical"
	TypeContinuous  VariableType = "continuous"
)

// Variable is one observed series.
type Variable struct {
	Name   string       `json:"name"`
	Type   VariableType `json:"type"`
	Mean   float64      `json:"mean"`
	Values []float64    `json:"values,omitempty"`
}

// Relationship is a directed edge From -> To.
type Relationship struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Strength    float64  `json:"strength"`   // signed, in [-1,1]
	Confidence  float64  `json:"confidence"` // 1 - p
	PValue      float64  `json:"p_value"`
	Lag         int      `json:"lag"`
	Mechanism   string   `json:"mechanism,omitempty"`
	Confounded  bool     `json:"confounded"`
	Confounders []string `json:"confounders,omitempty"`
}

// Graph is the discovered structure. It is rebuilt on every discovery.
type Graph struct {
	Variables       []Variable     `json:"variables"`
	Relationships   []Relationship `json:"relationships"`
	RootCauses      []string       `json:"root_causes"`
	TerminalEffects []string       `json:"terminal_effects"`
}

// Options configures discovery. Zero values mean reasoner defaults.
type Options struct {
	SignificanceLevel  float64 `json:"significance_level,omitempty"`
	MaxLag             int     `json:"max_lag,omitempty"`
	IncludeConfounders *bool   `json:"include_confounders,omitempty"`
}

// Effect is one downstream consequence of an intervention.
type Effect struct {
	Variable      string   `json:"variable"`
	Before        float64  `json:"before"`
	After         float64  `json:"after"`
	Change        float64  `json:"change"`
	PercentChange float64  `json:"percent_change"`
	PathStrength  float64  `json:"path_strength"`
	Path          []string `json:"path"`
	Direct        bool     `json:"direct"`
}

// InterventionResult splits reached variables into direct effects (one edge
// away) and side effects (further downstream).
type InterventionResult struct {
	Variable       string   `json:"variable"`
	Value          float64  `json:"value"`
	Observed       float64  `json:"observed"`
	RelativeChange float64  `json:"relative_change"`
	DirectEffects  []Effect `json:"direct_effects"`
	SideEffects    []Effect `json:"side_effects"`
	EdgeConfidence float64  `json:"edge_confidence"`
}

// Change sets one variable in an alternate scenario.
type Change struct {
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
}

// Delta compares one variable between the actual and alternate outcome.
type Delta struct {
	Variable       string  `json:"variable"`
	Actual         float64 `json:"actual"`
	Counterfactual float64 `json:"counterfactual"`
	Delta          float64 `json:"delta"`
	PercentChange  float64 `json:"percent_change"`
}

// CounterfactualResult is the outcome of applying a list of changes.
type CounterfactualResult struct {
	Changes        []Change           `json:"changes"`
	Actual         map[string]float64 `json:"actual"`
	Counterfactual map[string]float64 `json:"counterfactual"`
	Deltas         []Delta            `json:"deltas"`
	Explanation    string             `json:"explanation"`
	EdgeConfidence float64            `json:"edge_confidence"`
}

// RootCause is one upstream driver of a target.
type RootCause struct {
	Variable     string   `json:"variable"`
	PathStrength float64  `json:"path_strength"`
	Depth        int      `json:"depth"`
	Path         []string `json:"path"` // cause first, target last
}

// RootCauseResult ranks upstream drivers by |path strength|.
type RootCauseResult struct {
	Target         string      `json:"target"`
	Causes         []RootCause `json:"causes"`
	EdgeConfidence float64     `json:"edge_confidence"`
}
