package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type exporterKind string

const (
	exporterNone   exporterKind = "none"
	exporterOTLP   exporterKind = "otlp"
	exporterStdout exporterKind = "stdout"
)

func noopShutdown(context.Context) error { return nil }

// InitOTel installs a tracer provider for the worker and HTTP spans. Spans go
// to OTLP when an endpoint is configured, to stdout in dev mode, and nowhere
// otherwise. The returned shutdown func is never nil.
func InitOTel(ctx context.Context, log *logger.Logger, env string, cfg config.TelemetryConfig) func(context.Context) error {
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.TracingEnabled {
		return noopShutdown
	}
	kind := pickExporter(env, cfg)
	if kind == exporterNone {
		log.Info("Tracing enabled without an exporter; spans are sampled but dropped")
	}

	tp := sdktrace.NewTracerProvider(providerOptions(ctx, log, env, cfg, kind)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("Tracing initialized", "exporter", string(kind), "sample_ratio", clampRatio(cfg.SampleRatio))
	return tp.Shutdown
}

func providerOptions(ctx context.Context, log *logger.Logger, env string, cfg config.TelemetryConfig, kind exporterKind) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(cfg.SampleRatio)))),
	}
	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(env, cfg)...))
	if err != nil {
		log.Warn("Tracing resource incomplete", "error", err)
	}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}

	var exp sdktrace.SpanExporter
	switch kind {
	case exporterOTLP:
		eopts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimSpace(cfg.OTLPEndpoint))}
		if cfg.OTLPInsecure {
			eopts = append(eopts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, eopts...)
	case exporterStdout:
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		log.Warn("Trace exporter unavailable", "exporter", string(kind), "error", err)
		return opts
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
	}
	return opts
}

func pickExporter(env string, cfg config.TelemetryConfig) exporterKind {
	if strings.TrimSpace(cfg.OTLPEndpoint) != "" {
		return exporterOTLP
	}
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return exporterNone
	}
	return exporterStdout
}

func serviceAttributes(env string, cfg config.TelemetryConfig) []attribute.KeyValue {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "vizflow"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(name),
		attribute.String("deployment.environment", strings.TrimSpace(env)),
	}
	if v := strings.TrimSpace(cfg.Version); v != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(v))
	}
	return attrs
}

// Tracer returns a tracer from the global provider. It is a no-op tracer
// until InitOTel installs one.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func clampRatio(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
