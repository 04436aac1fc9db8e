package o11y

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "customer-churn-analysis"

type Config struct {
	LogLevel     string
	LogOutput    io.Writer
	OTLPEndpoint string
}

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
	Metrics  *Metrics
}

func Setup(ctx context.Context, cfg Config) (*Observability, func(), error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, func() {}, err
	}
	if cfg.LogOutput == nil {
		cfg.LogOutput = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(cfg.LogOutput, &slog.HandlerOptions{
		Level: level,
	}))

	opts := []trace.TracerProviderOption{
		trace.WithSampler(trace.AlwaysSample()),
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		)
		if err != nil {
			return nil, func() {}, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}

	return &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
		Metrics:  metrics,
	}, cleanup, nil
}

func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(value) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// Stage runs fn inside a span, records its duration and logs the outcome.
func (o *Observability) Stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.Tracer.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	o.Metrics.StageDuration.WithLabelValues(name).Set(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.Logger.ErrorContext(ctx, "stage failed", "stage", name, "duration", elapsed, "error", err)
		return err
	}
	o.Logger.DebugContext(ctx, "stage finished", "stage", name, "duration", elapsed)
	return nil
}

// Annotate attaches attributes to the span running in ctx, if any.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	oteltrace.SpanFromContext(ctx).SetAttributes(attrs...)
}
