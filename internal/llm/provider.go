package llm

import (
	"context"

	"github.com/zero-day-ai/crucible/internal/types"
)

// LLMProvider is the chat completion backend behind chat targets, attacker
// models, scorers and model-backed transformers.
type LLMProvider interface {
	// Name is the provider type, e.g. "openai" or "mock".
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Health(ctx context.Context) types.HealthStatus
}
