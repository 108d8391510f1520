package target

import (
	"io"
	"log/slog"
	"strings"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Target type names accepted by Build.
const (
	TypeChat    = "chat"
	TypeHTTP    = "http"
	TypeGandalf = "gandalf"
	TypeText    = "text"
)

// Spec describes a target as written in configuration.
type Spec struct {
	Type string `mapstructure:"type" yaml:"type" json:"type" validate:"required,oneof=chat http gandalf text"`

	// Chat targets
	Provider          string  `mapstructure:"provider" yaml:"provider,omitempty" json:"provider,omitempty"`
	Model             string  `mapstructure:"model" yaml:"model,omitempty" json:"model,omitempty"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature,omitempty" json:"temperature,omitempty" validate:"min=0,max=2"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" validate:"min=0"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty" validate:"min=0"`

	// Gandalf targets
	Level   string `mapstructure:"level" yaml:"level,omitempty" json:"level,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// HTTP targets
	HTTP HTTPConfig `mapstructure:"http" yaml:"http,omitempty" json:"http,omitempty"`
}

// Deps are the collaborators Build may need.
type Deps struct {
	Providers *llm.Registry
	History   HistoryLoader
	Output    io.Writer
	Logger    *slog.Logger
}

// Build creates the target described by spec.
func Build(spec Spec, deps Deps) (Target, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	switch strings.ToLower(spec.Type) {
	case TypeChat:
		if deps.Providers == nil {
			return nil, types.NewError(ErrCodeInvalidConfig, "chat target needs a provider registry")
		}
		provider, err := deps.Providers.Get(spec.Provider)
		if err != nil {
			return nil, err
		}
		opts := []ChatOption{
			WithTemperature(spec.Temperature),
			WithRequestsPerMinute(spec.RequestsPerMinute),
			WithChatLogger(deps.Logger),
		}
		if spec.Model != "" {
			opts = append(opts, WithChatModel(spec.Model))
		}
		if spec.MaxTokens > 0 {
			opts = append(opts, WithMaxTokens(spec.MaxTokens))
		}
		if deps.History != nil {
			opts = append(opts, WithHistoryLoader(deps.History))
		}
		return NewChatTarget(provider, opts...), nil

	case TypeHTTP:
		return NewHTTPTarget(spec.HTTP, nil, deps.Logger)

	case TypeGandalf:
		level := GandalfLevel(spec.Level)
		if level == "" {
			level = GandalfLevel1
		}
		return NewGandalfTarget(level, spec.BaseURL, nil, deps.Logger), nil

	case TypeText:
		if deps.Output == nil {
			return nil, types.NewError(ErrCodeInvalidConfig, "text target needs an output writer")
		}
		return NewTextTarget(deps.Output), nil

	default:
		return nil, types.NewError(ErrCodeInvalidConfig, "unknown target type: "+spec.Type)
	}
}
