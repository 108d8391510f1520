package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/zero-day-ai/crucible/internal/types"
)

// HealthChecker is implemented by the database, LLM providers, chat targets
// and embedders.
type HealthChecker interface {
	Health(ctx context.Context) types.HealthStatus
}

type componentState struct {
	checker       HealthChecker
	lastStatus    types.HealthStatus
	lastCheckedAt time.Time
}

// HealthMonitor checks registered components, records a gauge per
// component and logs state transitions. It is safe for concurrent use.
type HealthMonitor struct {
	logger     *slog.Logger
	gauge      metric.Float64Gauge
	components map[string]*componentState
	mu         sync.RWMutex
}

// NewHealthMonitor creates a monitor. A nil meter disables the gauge.
func NewHealthMonitor(logger *slog.Logger, meter metric.Meter) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("crucible/health")
	}

	gauge, err := meter.Float64Gauge(MetricHealthStatus,
		metric.WithDescription("1 when the component is healthy, 0 otherwise"))
	if err != nil {
		logger.Warn("failed to create health gauge", "error", err)
		gauge, _ = metricnoop.NewMeterProvider().Meter("crucible/health").Float64Gauge(MetricHealthStatus)
	}

	return &HealthMonitor{
		logger:     logger,
		gauge:      gauge,
		components: make(map[string]*componentState),
	}
}

// Register adds a component, replacing any component of the same name.
func (h *HealthMonitor) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.components[name] = &componentState{
		checker: checker,
		// Unhealthy until checked, so the first healthy result is logged as a recovery.
		lastStatus: types.NewHealthStatus(types.HealthStateUnhealthy, "not yet checked"),
	}
}

// Unregister removes a component.
func (h *HealthMonitor) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.components, name)
}

// Names returns the registered component names, sorted.
func (h *HealthMonitor) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check checks one component.
func (h *HealthMonitor) Check(ctx context.Context, name string) (types.HealthStatus, error) {
	h.mu.RLock()
	state, exists := h.components[name]
	h.mu.RUnlock()

	if !exists {
		return types.HealthStatus{}, fmt.Errorf("component %q is not registered", name)
	}

	status := state.checker.Health(ctx)
	h.update(ctx, name, state, status)
	return status, nil
}

// CheckAll checks every registered component. Checks run without holding
// the registry lock.
func (h *HealthMonitor) CheckAll(ctx context.Context) map[string]types.HealthStatus {
	h.mu.RLock()
	snapshot := make(map[string]*componentState, len(h.components))
	for name, state := range h.components {
		snapshot[name] = state
	}
	h.mu.RUnlock()

	results := make(map[string]types.HealthStatus, len(snapshot))
	for name, state := range snapshot {
		status := state.checker.Health(ctx)
		results[name] = status
		h.update(ctx, name, state, status)
	}
	return results
}

// Overall folds component results into one status: unhealthy if any
// component is unhealthy, degraded if any is degraded.
func Overall(results map[string]types.HealthStatus) types.HealthStatus {
	worst := types.HealthStateHealthy
	var failing []string
	for name, status := range results {
		if !status.IsHealthy() {
			worst = worst.Worse(status.State)
			failing = append(failing, name)
		}
	}
	if len(failing) == 0 {
		return types.Healthy(fmt.Sprintf("%d components healthy", len(results)))
	}
	sort.Strings(failing)
	return types.NewHealthStatus(worst, fmt.Sprintf("failing components: %v", failing))
}

func (h *HealthMonitor) update(ctx context.Context, name string, state *componentState, status types.HealthStatus) {
	h.mu.Lock()
	previous := state.lastStatus.State
	state.lastStatus = status
	state.lastCheckedAt = time.Now()
	h.mu.Unlock()

	value := 0.0
	if status.IsHealthy() {
		value = 1.0
	}
	h.gauge.Record(ctx, value, metric.WithAttributes(
		attribute.String("component", name),
		attribute.String("state", string(status.State)),
	))

	if previous != status.State {
		h.logStateChange(ctx, name, previous, status)
	}
}

func (h *HealthMonitor) logStateChange(ctx context.Context, component string, previous types.HealthState, status types.HealthStatus) {
	args := []any{
		"component", component,
		"previous_state", string(previous),
		"current_state", string(status.State),
		"message", status.Message,
	}

	switch {
	case previous == types.HealthStateHealthy:
		h.logger.ErrorContext(ctx, "component health degraded", args...)
	case status.IsHealthy():
		h.logger.InfoContext(ctx, "component health recovered", args...)
	default:
		h.logger.WarnContext(ctx, "component health state changed", args...)
	}
}
