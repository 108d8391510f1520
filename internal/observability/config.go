package observability

import (
	"fmt"
	"strings"
)

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json text"`
	Output string `yaml:"output" mapstructure:"output"`
}

// Validate validates the LoggingConfig fields.
// Level must be debug, info, warn or error; Format json or text; Output
// stdout, stderr or an absolute file path.
func (c *LoggingConfig) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Format) {
	case "", "json", "text":
	default:
		return NewConfigError(fmt.Sprintf("invalid log format: %s (must be one of: json, text)", c.Format))
	}

	output := strings.ToLower(c.Output)
	if output != "" && output != "stdout" && output != "stderr" && !strings.HasPrefix(c.Output, "/") {
		return NewConfigError(fmt.Sprintf("invalid log output: %s (must be 'stdout', 'stderr', or an absolute file path)", c.Output))
	}
	return nil
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	Provider     string  `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=otlp stdout noop"`
	Endpoint     string  `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRate   float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
	TLSCertFile  string  `yaml:"tls_cert_file" mapstructure:"tls_cert_file"` // CA bundle for the collector
	InsecureMode bool    `yaml:"insecure_mode" mapstructure:"insecure_mode"` // plaintext gRPC
}

// Validate validates the TracingConfig fields.
// Returns an error if Provider is not otlp, stdout or noop, if SampleRate is
// outside [0,1], or if an otlp provider has no endpoint.
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	provider := strings.ToLower(c.Provider)
	switch provider {
	case "otlp", "stdout", "noop":
	default:
		return NewConfigError(fmt.Sprintf("invalid tracing provider: %s (must be one of: otlp, stdout, noop)", c.Provider))
	}

	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return NewConfigError(fmt.Sprintf("invalid sample rate: %f (must be between 0.0 and 1.0)", c.SampleRate))
	}

	if provider == "otlp" && c.Endpoint == "" {
		return NewConfigError("endpoint is required when tracing is enabled")
	}
	return nil
}

// MetricsConfig contains metrics export configuration.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Provider string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=prometheus otlp"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Port     int    `yaml:"port" mapstructure:"port" validate:"min=0,max=65535"`
}

// Validate validates the MetricsConfig fields.
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch strings.ToLower(c.Provider) {
	case "prometheus":
		if c.Port < 1 || c.Port > 65535 {
			return NewConfigError(fmt.Sprintf("invalid metrics port: %d (must be between 1 and 65535)", c.Port))
		}
	case "otlp":
		if c.Endpoint == "" {
			return NewConfigError("endpoint is required for otlp metrics")
		}
	default:
		return NewConfigError(fmt.Sprintf("invalid metrics provider: %s (must be one of: prometheus, otlp)", c.Provider))
	}
	return nil
}
