package config

import (
	"path/filepath"
	"time"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/observability"
	"github.com/zero-day-ai/crucible/internal/target"
)

// DefaultConfig returns a Config with sensible default values. The only
// target is a text target that prints prompts, so a fresh install can dry
// run an attack without any credentials.
func DefaultConfig() *Config {
	homeDir := DefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			HomeDir: homeDir,
			Timeout: 30 * time.Minute,
		},
		Database: DBConfig{
			Path:           filepath.Join(homeDir, "memory.db"),
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		Logging: observability.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.TracingConfig{
			Enabled:    false,
			Provider:   "otlp",
			SampleRate: 1.0,
		},
		Metrics: observability.MetricsConfig{
			Enabled:  false,
			Provider: "prometheus",
			Port:     9464,
		},
		LLM: LLMConfig{
			Providers: make(map[string]llm.ProviderConfig),
		},
		Attack: AttackConfig{
			Target:      "console",
			MaxTurns:    5,
			Threshold:   0.75,
			Concurrency: 4,
			Retry:       llm.DefaultRetryPolicy(),
		},
		Targets: map[string]target.Spec{
			"console": {Type: target.TypeText},
		},
		Scorers: make(map[string]ScorerConfig),
	}
}
