package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fractal-lba/quantcore/internal/analysis"
	"github.com/fractal-lba/quantcore/internal/api"
	"github.com/fractal-lba/quantcore/internal/auth"
	"github.com/fractal-lba/quantcore/internal/forecast"
	"github.com/fractal-lba/quantcore/internal/tenant"
)

// handle reads, journals and decodes the body, then runs fn and writes its
// envelope.
func handle[Req any, Res any](s *Server, op api.Op, fn func(context.Context, *Req) (*api.Envelope[Res], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
				return
			}
			s.writeError(w, r, http.StatusBadRequest, "failed to read body")
			return
		}

		// journal before decoding so malformed requests are kept too
		if s.journal != nil {
			if err := s.journal.Append(string(op), body); err != nil {
				s.metrics.JournalErrors.Inc()
				s.logger.Error("journal append failed", zap.String("op", string(op)), zap.Error(err))
				s.writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
		}

		req := new(Req)
		if err := json.Unmarshal(body, req); err != nil {
			s.metrics.ObserveError(string(op), true)
			s.writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}

		ctx := analysis.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		env, err := fn(ctx, req)
		if err != nil {
			status := statusFor(err)
			msg := err.Error()
			if status == http.StatusInternalServerError {
				msg = "internal error"
			}
			s.writeError(w, r, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, env)
	}
}

// simulate enforces the tenant's iteration cap before simulating.
func (s *Server) simulate(ctx context.Context, req *api.SimulateRequest) (*api.Envelope[*forecast.SimulationResult], error) {
	if s.tenants != nil {
		iterations := req.Iterations
		if iterations == 0 {
			iterations = s.svc.ForecastParams().Iterations
		}
		if t, err := s.tenants.Get(auth.TenantID(ctx)); err == nil && t.MaxIterations > 0 && iterations > t.MaxIterations {
			return nil, fmt.Errorf("%w: %d iterations exceed the tenant limit of %d",
				forecast.ErrTooManyIterations, iterations, t.MaxIterations)
		}
	}
	return s.svc.SimulateScenario(ctx, req)
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case api.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.tenants == nil {
		s.writeError(w, r, http.StatusNotFound, "tenant accounting disabled")
		return
	}
	u, err := s.tenants.Usage(auth.TenantID(r.Context()))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// globalLimit applies the server-wide token bucket.
func (s *Server) globalLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.RateLimited.WithLabelValues("global").Inc()
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tenantLimit applies the caller's rate and daily quota.
func (s *Server) tenantLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tenants == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		err := s.tenants.Allow(auth.TenantID(r.Context()))
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, tenant.ErrRateLimited):
			s.metrics.RateLimited.WithLabelValues("tenant").Inc()
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, tenant.ErrQuotaExceeded):
			s.metrics.RateLimited.WithLabelValues("quota").Inc()
			if u, uerr := s.tenants.Usage(auth.TenantID(r.Context())); uerr == nil {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(u.ResetAt).Seconds())+1))
			}
			s.writeError(w, r, http.StatusTooManyRequests, err.Error())
		default:
			s.writeError(w, r, http.StatusForbidden, err.Error())
		}
	})
}

// accessLog writes one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if id := middleware.GetReqID(r.Context()); id != "" {
			ww.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Error:     message,
		Status:    status,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeJSON encodes before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(api.ErrorResponse{Error: "internal error", Status: status})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
