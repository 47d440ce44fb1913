package api

import (
	"errors"

	"github.com/fractal-lba/quantcore/internal/causal"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/points"
)

// ErrInvalidRequest marks a structurally malformed request.
var ErrInvalidRequest = errors.New("invalid request")

var inputErrors = []error{
	ErrInvalidRequest,
	points.ErrEmptyInput,
	points.ErrUnknownMetric,
	points.ErrUnknownMethod,
	points.ErrInvalidOptions,
	forecast.ErrInsufficientData,
	forecast.ErrUnorderedSeries,
	forecast.ErrUnknownMethod,
	forecast.ErrInvalidOptions,
	forecast.ErrNoVariables,
	forecast.ErrInvalidVariable,
	forecast.ErrTooManyIterations,
	causal.ErrNoSeries,
	causal.ErrUnknownVariable,
	causal.ErrInvalidOptions,
}

// IsInputError reports whether err was caused by the caller's input rather
// than by the service.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorResponse is the JSON body of every non-2xx HTTP response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}
