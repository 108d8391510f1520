package llm

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/crucible/internal/types"
)

// ProviderType represents the type of LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
	ProviderMock      ProviderType = "mock"
)

// ProviderConfig configures one chat model endpoint. The same shape is used
// for the objective target, the attacker model and the scoring model.
type ProviderConfig struct {
	Type         ProviderType `mapstructure:"type" yaml:"type" json:"type" validate:"required,oneof=anthropic openai google ollama mock"`
	APIKey       string       `mapstructure:"api_key" yaml:"api_key" json:"-"`
	BaseURL      string       `mapstructure:"base_url" yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	DefaultModel string       `mapstructure:"default_model" yaml:"default_model" json:"default_model"`
	Temperature  float64      `mapstructure:"temperature" yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
	MaxTokens    int          `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens" validate:"min=0"`

	// Responses are canned replies for the mock provider.
	Responses []string `mapstructure:"responses" yaml:"responses" json:"responses,omitempty"`
}

// Validate performs validation on the ProviderConfig.
func (p *ProviderConfig) Validate() error {
	switch p.Type {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama, ProviderMock:
	case "":
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "provider type cannot be empty")
	default:
		return types.NewError(
			types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("invalid provider type '%s', must be one of: anthropic, openai, google, ollama, mock", p.Type),
		)
	}

	if p.Type != ProviderMock && p.Type != ProviderOllama && p.DefaultModel == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "default_model cannot be empty")
	}

	if p.Temperature < 0 || p.Temperature > 2 {
		return types.NewError(
			types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("temperature must be between 0 and 2, got %f", p.Temperature),
		)
	}

	return nil
}

// GetBaseURL returns the base URL for a provider, with defaults for known providers.
func (p *ProviderConfig) GetBaseURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}

	switch p.Type {
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderGoogle:
		return "https://generativelanguage.googleapis.com/v1beta"
	case ProviderOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

// NormalizeProviderName normalizes provider names to lowercase for consistent lookup.
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
