package tracing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies every span this daemon starts.
const tracerName = "github.com/averin/conduit"

// Config describes the tracer provider Init installs.
type Config struct {
	ServiceName string
	Version     string
	// SampleRatio is the head sampling probability. Values outside
	// (0, 1] mean sample everything.
	SampleRatio float64
}

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// Init installs the process-wide tracer provider. The first successful
// call wins; later calls are no-ops until Shutdown.
func Init(cfg Config) error {
	providerMu.Lock()
	defer providerMu.Unlock()
	if provider != nil {
		return nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "conduit"
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceInstanceID(uuid.NewString()),
	}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return fmt.Errorf("failed to build tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	provider = tp
	otel.SetTracerProvider(tp)
	return nil
}

// Shutdown flushes and tears down the tracer provider installed by Init.
func Shutdown(ctx context.Context) error {
	providerMu.Lock()
	tp := provider
	provider = nil
	providerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span on the daemon tracer and mirrors the otel trace
// id into the context key used for log correlation.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
