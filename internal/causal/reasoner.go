package causal

import (
	"fmt"
	"math"
)

const (
	DefaultSignificanceLevel = 0.05
	DefaultMaxLag            = 3
	MaxLagLimit              = 64

	// MinStrength is the |r| a lagged correlation must exceed to be kept.
	MinStrength = 0.3
	// ConfounderThreshold is the |r| a third variable needs with both
	// endpoints to be flagged as a confounder.
	ConfounderThreshold = 0.3
)

// Params holds the reasoner defaults applied to unset options.
type Params struct {
	SignificanceLevel  float64
	MaxLag             int
	IncludeConfounders bool
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		SignificanceLevel:  DefaultSignificanceLevel,
		MaxLag:             DefaultMaxLag,
		IncludeConfounders: true,
	}
}

// Reasoner discovers causal graphs and reasons over them. It holds only
// immutable defaults and is safe for concurrent use.
type Reasoner struct {
	params Params
}

// NewReasoner creates a reasoner. Out-of-range params fall back to defaults.
func NewReasoner(params Params) *Reasoner {
	def := DefaultParams()
	if params.SignificanceLevel <= 0 || params.SignificanceLevel >= 1 {
		params.SignificanceLevel = def.SignificanceLevel
	}
	if params.MaxLag <= 0 || params.MaxLag > MaxLagLimit {
		params.MaxLag = def.MaxLag
	}
	return &Reasoner{params: params}
}

// Params returns the reasoner defaults.
func (r *Reasoner) Params() Params {
	return r.params
}

// resolved is Options with every default filled in.
type resolved struct {
	alpha       float64
	maxLag      int
	confounders bool
}

func (r *Reasoner) resolve(opts Options) (resolved, error) {
	out := resolved{
		alpha:       opts.SignificanceLevel,
		maxLag:      opts.MaxLag,
		confounders: r.params.IncludeConfounders,
	}
	if out.alpha == 0 {
		out.alpha = r.params.SignificanceLevel
	}
	if out.alpha <= 0 || out.alpha >= 1 || math.IsNaN(out.alpha) {
		return out, fmt.Errorf("%w: significance level must be in (0,1), got %g", ErrInvalidOptions, opts.SignificanceLevel)
	}
	if out.maxLag == 0 {
		out.maxLag = r.params.MaxLag
	}
	if out.maxLag < 1 || out.maxLag > MaxLagLimit {
		return out, fmt.Errorf("%w: max lag must be in 1..%d, got %d", ErrInvalidOptions, MaxLagLimit, opts.MaxLag)
	}
	if opts.IncludeConfounders != nil {
		out.confounders = *opts.IncludeConfounders
	}
	return out, nil
}
