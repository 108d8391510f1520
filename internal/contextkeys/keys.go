// Package contextkeys provides the context keys shared by the attack and
// transform packages. It exists because transform cannot import attack.
package contextkeys

import "context"

// Key is the type for all crucible context keys.
type Key string

const (
	// OrchestratorID stores the id of the orchestration a prompt belongs to.
	OrchestratorID Key = "crucible.orchestrator_id"

	// ConversationID stores the target conversation a prompt is sent on.
	// Backtracking changes it mid-run.
	ConversationID Key = "crucible.conversation_id"

	// Turn stores the 1-based attack turn. Single-turn sends leave it unset.
	Turn Key = "crucible.turn"
)

// WithOrchestratorID returns a new context with the orchestrator id set.
func WithOrchestratorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OrchestratorID, id)
}

// GetOrchestratorID retrieves the orchestrator id from context.
// Returns empty string if not set.
func GetOrchestratorID(ctx context.Context) string {
	if v, ok := ctx.Value(OrchestratorID).(string); ok {
		return v
	}
	return ""
}

// WithConversationID returns a new context with the conversation id set.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConversationID, id)
}

// GetConversationID retrieves the conversation id from context.
// Returns empty string if not set.
func GetConversationID(ctx context.Context) string {
	if v, ok := ctx.Value(ConversationID).(string); ok {
		return v
	}
	return ""
}

// WithTurn returns a new context with the attack turn set.
func WithTurn(ctx context.Context, turn int) context.Context {
	return context.WithValue(ctx, Turn, turn)
}

// GetTurn retrieves the attack turn from context, or 0 when unset.
func GetTurn(ctx context.Context) int {
	if v, ok := ctx.Value(Turn).(int); ok {
		return v
	}
	return 0
}
