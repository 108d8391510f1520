package observability

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Metric names recorded by the engine. Components create the instruments
// themselves from the meter they are given; the names are collected here so
// dashboards have one place to look.
const (
	MetricAttackRuns         = "crucible.attack.runs"
	MetricAttackTurns        = "crucible.attack.turns"
	MetricAttackTurnDuration = "crucible.attack.turn.duration"
	MetricScoreVerdicts      = "crucible.score.verdicts"
	MetricTransformApplied   = "crucible.transform.applications"
	MetricHealthStatus       = "crucible.health.status"
)

// Metrics holds an initialized meter provider. Handler is non-nil for the
// prometheus provider and serves the scrape endpoint.
type Metrics struct {
	Provider metric.MeterProvider
	Handler  http.Handler

	sdk *sdkmetric.MeterProvider
}

// Meter returns a named meter from the provider.
func (m *Metrics) Meter(name string) metric.Meter {
	return m.Provider.Meter(name)
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.sdk == nil {
		return nil
	}
	if err := m.sdk.Shutdown(ctx); err != nil {
		return types.WrapError(ErrCodeShutdown, "failed to shutdown meter provider", err)
	}
	return nil
}

// InitMetrics builds a meter provider for cfg. Supports "prometheus"
// (pull, served by Metrics.Handler) and "otlp" (push over gRPC).
//
// When cfg.Enabled is false, a noop provider is returned.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{Provider: noop.NewMeterProvider()}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Provider) {
	case "prometheus":
		return initPrometheusProvider()
	default:
		return initOTLPProvider(ctx, cfg)
	}
}

// initPrometheusProvider uses a dedicated registry so repeated
// initialization in tests does not collide on the default registerer.
func initPrometheusProvider() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, types.WrapError(ErrCodeExporterConnection, "failed to create prometheus exporter", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &Metrics{
		Provider: provider,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		sdk:      provider,
	}, nil
}

func initOTLPProvider(ctx context.Context, cfg MetricsConfig) (*Metrics, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, NewExporterConnectionError(cfg.Endpoint, err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)

	return &Metrics{Provider: provider, sdk: provider}, nil
}
