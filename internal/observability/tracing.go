package observability

import (
	"context"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"

	"github.com/zero-day-ai/crucible/internal/types"
	"github.com/zero-day-ai/crucible/pkg/version"
)

const spanBatchTimeout = 5 * time.Second

// Tracing holds the tracer provider the components get their tracers from.
type Tracing struct {
	Provider trace.TracerProvider

	sdk *sdktrace.TracerProvider
}

func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.Provider.Tracer(name)
}

// Shutdown flushes buffered spans. ctx bounds the flush.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.sdk == nil {
		return nil
	}
	if err := t.sdk.Shutdown(ctx); err != nil {
		return types.WrapError(ErrCodeShutdown, "failed to shutdown tracer provider", err)
	}
	return nil
}

// InitTracing builds the provider for cfg and installs it globally. The
// "otlp" provider ships spans to a gRPC collector; "stdout" pretty-prints
// them to w, which the CLI points at stderr. Disabled tracing and the
// "noop" provider record nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, w io.Writer) (*Tracing, error) {
	if !cfg.Enabled || strings.EqualFold(cfg.Provider, "noop") {
		return &Tracing{Provider: noop.NewTracerProvider()}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporter, err := newSpanExporter(ctx, cfg, w)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "crucible"
	}
	// resource.New rather than merging into resource.Default(), which can
	// carry a different semconv schema URL.
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(name), semconv.ServiceVersion(version.Version)),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, types.WrapError(ErrCodeExporterConnection, "failed to create resource", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(spanBatchTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{Provider: tp, sdk: tp}, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(cfg.Provider, "stdout") {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, NewExporterConnectionError("stdout", err)
		}
		return exp, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	switch {
	case cfg.TLSCertFile != "":
		creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertFile, "")
		if err != nil {
			return nil, types.WrapError(ErrCodeExporterConnection, "failed to load TLS credentials", err)
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	case cfg.InsecureMode:
		opts = append(opts, otlptracegrpc.WithInsecure())
	default:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(nil)))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, NewExporterConnectionError(cfg.Endpoint, err)
	}
	return exp, nil
}
