package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetOrchestratorID(ctx))
	assert.Empty(t, GetConversationID(ctx))
	assert.Zero(t, GetTurn(ctx))

	ctx = WithOrchestratorID(ctx, "orch")
	ctx = WithConversationID(ctx, "conv-1")
	ctx = WithTurn(ctx, 3)
	assert.Equal(t, "orch", GetOrchestratorID(ctx))
	assert.Equal(t, "conv-1", GetConversationID(ctx))
	assert.Equal(t, 3, GetTurn(ctx))

	// a backtrack replaces the conversation for the rest of the run
	ctx = WithConversationID(ctx, "conv-2")
	assert.Equal(t, "conv-2", GetConversationID(ctx))
	assert.Equal(t, "orch", GetOrchestratorID(ctx))
}

func TestKeys_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), Turn, "three")
	assert.Zero(t, GetTurn(ctx))
}
