package embedder

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// EmbedderType represents available embedder implementations.
type EmbedderType string

const (
	// EmbedderTypeOpenAI uses the OpenAI embeddings API.
	EmbedderTypeOpenAI EmbedderType = "openai"

	// EmbedderTypeMock produces deterministic hash-derived vectors offline.
	EmbedderTypeMock EmbedderType = "mock"
)

// CreateEmbedder creates an embedder based on the provided configuration.
func CreateEmbedder(config EmbedderConfig) (Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch EmbedderType(config.Provider) {
	case EmbedderTypeOpenAI:
		return NewOpenAIEmbedder(config)
	case EmbedderTypeMock:
		m := NewMockEmbedder()
		if config.Model != "" {
			m.SetModel(config.Model)
		}
		return m, nil
	default:
		return nil, types.NewError(ErrCodeInvalidConfig,
			fmt.Sprintf("unknown embedder provider '%s' - must be 'openai' or 'mock'", config.Provider))
	}
}
