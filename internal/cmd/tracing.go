package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// traceSink writes the spans of one invocation to a file as JSON lines.
type traceSink struct {
	file     *os.File
	provider *sdktrace.TracerProvider
}

// startTracing installs a global tracer provider exporting to path.
// An empty path leaves the no-op provider in place and returns nil.
func startTracing(path string) (*traceSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "mesched"),
		attribute.String("mesched.tenant", viper.GetString("tenant")),
	)
	// Spans are exported as they end; the process exits right after the command.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return &traceSink{file: f, provider: tp}, nil
}

// shutdown flushes pending spans and closes the file.
func (s *traceSink) shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.provider.Shutdown(ctx)
	if cerr := s.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
