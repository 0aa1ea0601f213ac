package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProviderOption configures NewTracerProvider
type TracerProviderOption func(*tracerProviderConfig)

type tracerProviderConfig struct {
	resource      *resource.Resource
	tracingConfig *TracingConfig
	endpoint      string
	insecure      bool
	exporter      sdktrace.SpanExporter
}

// WithTracerResource sets the resource spans are reported under. Without it the
// provider describes a launcher with the default service name.
func WithTracerResource(res *resource.Resource) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.resource = res
	}
}

// WithTracingConfig sets the tracing section
func WithTracingConfig(tc *TracingConfig) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.tracingConfig = tc
	}
}

// WithTracerEndpoint sets the OTLP collector endpoint
func WithTracerEndpoint(endpoint string) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.endpoint = endpoint
	}
}

// WithTracerInsecure sends OTLP over plain HTTP
func WithTracerInsecure(insecure bool) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.insecure = insecure
	}
}

// WithSpanExporter replaces the OTLP exporter; endpoint and insecure are then ignored
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.exporter = exporter
	}
}

// NewTracerProvider creates a batching TracerProvider and installs it globally together
// with the W3C propagators. Sweeper ticks and backlog resumption start root spans, so the
// sampling ratio applies to them; launches inherit the decision of their parent.
// It returns a no-op provider when tracing is disabled, which is the case for a
// prometheus-only setup.
func NewTracerProvider(ctx context.Context, opts ...TracerProviderOption) (trace.TracerProvider, error) {
	cfg := &tracerProviderConfig{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.tracingConfig == nil || !cfg.tracingConfig.Enabled {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	res := cfg.resource
	if res == nil {
		var err error
		if res, err = NewResource(ctx, Identity{}); err != nil {
			return nil, err
		}
	}

	exporter := cfg.exporter
	if exporter == nil {
		var err error
		if exporter, err = createOTLPTracingExporter(ctx, cfg.endpoint, cfg.insecure); err != nil {
			return nil, fmt.Errorf("failed to create OTLP tracing exporter: %w", err)
		}
		if cfg.insecure {
			slog.Warn("Tracing uses an insecure connection, spans are sent over plain HTTP")
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.tracingConfig.GetSampling()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Tracing initialized",
		"endpoint", cfg.endpoint,
		"otlp", cfg.exporter == nil,
		"sampling_ratio", cfg.tracingConfig.GetSampling(),
	)
	return tp, nil
}

func createOTLPTracingExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}
