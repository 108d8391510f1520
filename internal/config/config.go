package config

import (
	"time"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory/embedder"
	"github.com/zero-day-ai/crucible/internal/observability"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
)

// Config is the root configuration of the crucible binary.
type Config struct {
	Core         CoreConfig                  `mapstructure:"core" yaml:"core"`
	Database     DBConfig                    `mapstructure:"database" yaml:"database"`
	Logging      observability.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing      observability.TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Metrics      observability.MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	LLM          LLMConfig                   `mapstructure:"llm" yaml:"llm"`
	Embedding    *embedder.EmbedderConfig    `mapstructure:"embedding" yaml:"embedding,omitempty" validate:"omitempty"`
	Attack       AttackConfig                `mapstructure:"attack" yaml:"attack"`
	Targets      map[string]target.Spec      `mapstructure:"targets" yaml:"targets" validate:"dive"`
	Scorers      map[string]ScorerConfig     `mapstructure:"scorers" yaml:"scorers" validate:"dive"`
	Transformers []transform.Spec            `mapstructure:"transformers" yaml:"transformers,omitempty" validate:"dive"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir string        `mapstructure:"home_dir" yaml:"home_dir" validate:"required"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
}

// DBConfig contains database configuration.
type DBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path" validate:"required"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout" validate:"min=0"`
}

// LLMConfig names the chat model endpoints that targets and scorers refer
// to by key. Transformer names the provider behind the variation and
// translation transformers.
type LLMConfig struct {
	Providers   map[string]llm.ProviderConfig `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Transformer string                        `mapstructure:"transformer" yaml:"transformer,omitempty"`
}

// ScorerConfig is a scorer spec plus the name of the chat target that
// answers it.
type ScorerConfig struct {
	score.Spec `mapstructure:",squash" yaml:",inline"`
	Target     string `mapstructure:"target" yaml:"target" validate:"required"`
}

// AttackConfig holds the attack defaults. Target, attacker and scorer
// fields are keys into the targets and scorers sections.
type AttackConfig struct {
	Target        string            `mapstructure:"target" yaml:"target"`
	Attacker      string            `mapstructure:"attacker" yaml:"attacker,omitempty"`
	AttackerMode  string            `mapstructure:"attacker_mode" yaml:"attacker_mode,omitempty" validate:"omitempty,oneof=chat crescendo"`
	Scorer        string            `mapstructure:"scorer" yaml:"scorer"`
	RefusalScorer string            `mapstructure:"refusal_scorer" yaml:"refusal_scorer,omitempty"`
	MaxBacktracks int               `mapstructure:"max_backtracks" yaml:"max_backtracks" validate:"min=0"`
	MaxTurns      int               `mapstructure:"max_turns" yaml:"max_turns" validate:"min=1"`
	Threshold     float64           `mapstructure:"threshold" yaml:"threshold" validate:"min=0,max=1"`
	Concurrency   int               `mapstructure:"concurrency" yaml:"concurrency" validate:"min=1,max=100"`
	SystemPrompt  string            `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Labels        map[string]string `mapstructure:"labels" yaml:"labels,omitempty"`
	Retry         llm.RetryPolicy   `mapstructure:"retry" yaml:"retry"`
}
