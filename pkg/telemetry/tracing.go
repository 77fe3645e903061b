package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/odvcencio/bcp"

// Tracing owns the tracer provider for one process.
type Tracing struct {
	provider *sdktrace.TracerProvider
	file     *os.File
	tracer   trace.Tracer
}

// NewTracing exports spans as JSON lines to path. An empty path disables
// tracing and returns a no-op tracer.
func NewTracing(path, version string) (*Tracing, error) {
	if path == "" {
		return &Tracing{tracer: noop.NewTracerProvider().Tracer(tracerName)}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "bcp"),
		attribute.String("service.version", version),
	)

	// Syncer rather than batcher: a sweep is slow and may be killed at any
	// point, and every finished span should already be on disk.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Tracing{
		provider: provider,
		file:     f,
		tracer:   provider.Tracer(tracerName),
	}, nil
}

// Tracer returns the tracer spans should be started from.
func (t *Tracing) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return t.tracer
}

// Shutdown flushes the exporter and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	err := t.provider.Shutdown(ctx)
	if cerr := t.file.Close(); err == nil {
		err = cerr
	}
	return err
}
