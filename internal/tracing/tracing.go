// Package tracing installs the OpenTelemetry tracer provider and opens spans
// around the mutating service operations.
package tracing

import (
	"context"
	"strings"

	"github.com/diewo77/go-conventions/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/diewo77/go-conventions"

// Init configures the global provider. mode "stdout" exports spans to stdout;
// anything else keeps the default no-op provider. The returned func flushes
// and stops the exporter.
func Init(mode string, log *logger.Logger) (func(context.Context) error, error) {
	if strings.ToLower(strings.TrimSpace(mode)) != "stdout" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	log.Info("tracing initialized", "exporter", "stdout")
	return tp.Shutdown, nil
}

// Start opens a span named op with the given attributes.
func Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, op, trace.WithAttributes(attrs...))
}

// End records err on span, if any, then ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ConventionID is the attribute every convention span carries.
func ConventionID(id uint) attribute.KeyValue {
	return attribute.Int64("convention.id", int64(id))
}
