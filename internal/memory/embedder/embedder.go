package embedder

import (
	"context"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Embedder generates embedding vectors from text content.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embeddings for multiple texts in one request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimensionality of embedding vectors, or 0 if
	// it is not known until the first call.
	Dimensions() int

	// Model returns the name of the embedding model being used.
	Model() string

	// Health returns the health status of the embedder.
	Health(ctx context.Context) types.HealthStatus
}

// EmbedderConfig holds configuration for embedding providers.
type EmbedderConfig struct {
	// Provider selects the implementation: "openai" or "mock".
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider" validate:"required,oneof=openai mock"`

	// Model is the embedding model, e.g. "text-embedding-3-small".
	Model string `yaml:"model" json:"model" mapstructure:"model"`

	// APIKey authenticates against the provider. It is always passed in
	// explicitly; the embedder never consults the environment.
	APIKey string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (Azure, proxies, tests).
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// Validate checks if the EmbedderConfig is valid.
func (c *EmbedderConfig) Validate() error {
	switch EmbedderType(c.Provider) {
	case EmbedderTypeOpenAI:
		if c.APIKey == "" {
			return types.NewError(ErrCodeInvalidConfig, "openai embedder requires api_key")
		}
	case EmbedderTypeMock:
	case "":
		return types.NewError(ErrCodeInvalidConfig, "embedder provider cannot be empty")
	default:
		return types.NewError(ErrCodeInvalidConfig, "unknown embedder provider: "+c.Provider)
	}

	if c.Timeout < 0 {
		return types.NewError(ErrCodeInvalidConfig, "timeout must be non-negative")
	}

	return nil
}

// DefaultEmbedderConfig returns a default configuration for the OpenAI embedder.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider: string(EmbedderTypeOpenAI),
		Model:    "text-embedding-3-small",
		Timeout:  30,
	}
}
