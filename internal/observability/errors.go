package observability

import (
	"github.com/zero-day-ai/crucible/internal/types"
)

// Observability error codes
const (
	// ErrCodeInvalidConfig indicates an invalid logging, tracing or metrics configuration.
	ErrCodeInvalidConfig types.ErrorCode = "OBSERVABILITY_INVALID_CONFIG"

	// ErrCodeExporterConnection indicates failure to set up an exporter.
	ErrCodeExporterConnection types.ErrorCode = "OBSERVABILITY_EXPORTER_CONNECTION"

	// ErrCodeShutdown indicates pending telemetry could not be flushed.
	ErrCodeShutdown types.ErrorCode = "OBSERVABILITY_SHUTDOWN_FAILED"
)

// NewConfigError reports an invalid observability setting.
func NewConfigError(message string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidConfig, message)
}

// NewExporterConnectionError creates an error for exporter setup failures.
// Connection problems are usually transient, so the error is retryable.
func NewExporterConnectionError(endpoint string, cause error) *types.CrucibleError {
	return &types.CrucibleError{
		Code:      ErrCodeExporterConnection,
		Message:   "failed to create exporter for " + endpoint,
		Retryable: true,
		Cause:     cause,
	}
}
