// Package otel configures OpenTelemetry tracing for analysis operations.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every analysis span.
const TracerName = "github.com/fractal-lba/quantcore"

// Config holds tracing configuration.
type Config struct {
	Enabled              bool    `toml:"enabled"`
	ServiceName          string  `toml:"service_name"`
	ServiceVersion       string  `toml:"service_version"`
	Environment          string  `toml:"environment"`
	CollectorEndpoint    string  `toml:"collector_endpoint"`
	CollectorInsecure    bool    `toml:"collector_insecure"`
	SamplingRate         float64 `toml:"sampling_rate"` // 0.0 to 1.0
	MaxEventsPerSpan     int     `toml:"max_events_per_span"`
	MaxAttributesPerSpan int     `toml:"max_attributes_per_span"`
}

// DefaultConfig returns defaults with tracing disabled.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:          serviceName,
		ServiceVersion:       "0.1.0",
		Environment:          "development",
		CollectorEndpoint:    "localhost:4317",
		CollectorInsecure:    true,
		SamplingRate:         1.0,
		MaxEventsPerSpan:     128,
		MaxAttributesPerSpan: 128,
	}
}

// InitTracer installs a global OTLP tracer provider. It returns a nil
// provider when tracing is disabled; spans then go to the no-op tracer.
func InitTracer(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.CollectorInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithSpanLimits(sdktrace.SpanLimits{
			EventCountLimit:     cfg.MaxEventsPerSpan,
			AttributeCountLimit: cfg.MaxAttributesPerSpan,
		}),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the provider. A nil provider is a no-op.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Attribute keys of analysis spans.
const (
	AttrOp          = attribute.Key("analysis.op")
	AttrFingerprint = attribute.Key("analysis.fingerprint")
	AttrConfidence  = attribute.Key("analysis.confidence")
	AttrCacheTier   = attribute.Key("analysis.cache_tier")
	AttrInputSize   = attribute.Key("analysis.input_size")

	AttrClusters      = attribute.Key("points.clusters")
	AttrOutliers      = attribute.Key("points.outliers")
	AttrMethod        = attribute.Key("forecast.method")
	AttrHorizon       = attribute.Key("forecast.horizon")
	AttrIterations    = attribute.Key("simulation.iterations")
	AttrRelationships = attribute.Key("causal.relationships")
	AttrVariable      = attribute.Key("causal.variable")

	AttrTenantID = attribute.Key("tenant.id")
	AttrUserID   = attribute.Key("user.id")
)

// AnalysisAttributes are set on every operation span.
func AnalysisAttributes(op, fingerprint string, inputSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOp.String(op),
		AttrFingerprint.String(fingerprint),
		AttrInputSize.Int(inputSize),
	}
}

func TenantAttributes(tenantID, userID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID)}
	if userID != "" {
		attrs = append(attrs, AttrUserID.String(userID))
	}
	return attrs
}
