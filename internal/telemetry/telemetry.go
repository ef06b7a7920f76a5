// Package telemetry wires OpenTelemetry tracing for the gitdir CLI.
// Resolutions always create spans through the global tracer provider; until
// Init installs an SDK provider those spans are no-ops.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/zjrosen/gitdir/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Init installs a global tracer provider built from cfg.
// Spans from the stdout exporter are written to w as JSON.
// Returns a shutdown function that flushes and closes the exporter.
func Init(ctx context.Context, cfg Config, w io.Writer) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, batch, err := newExporter(ctx, cfg, w)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// The CLI exits right after resolving, so stdout spans are exported
	// synchronously; a collector gets batches.
	export := sdktrace.WithSyncer(exporter)
	if batch {
		export = sdktrace.WithBatcher(exporter)
	}

	provider := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	log.Debug(log.CatTrace, "tracing enabled", "exporter", cfg.Exporter, "endpoint", cfg.Endpoint)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down tracer provider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, cfg Config, w io.Writer) (sdktrace.SpanExporter, bool, error) {
	switch cfg.Exporter {
	case ExporterStdout, "":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, false, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, false, nil

	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, true, nil

	default:
		return nil, false, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}
