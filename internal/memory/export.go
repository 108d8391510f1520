package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// ConversationExport is the JSON document written by ExportConversation.
type ConversationExport struct {
	ConversationID string    `json:"conversation_id"`
	ExportedAt     time.Time `json:"exported_at"`
	Turns          []Turn    `json:"turns"`
	Scores         []Score   `json:"scores"`
}

// ExportConversation writes the conversation and every score attached to
// its pieces as indented JSON.
func (s *SQLiteStore) ExportConversation(ctx context.Context, conversationID string, w io.Writer) error {
	turns, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return types.NewError(ErrCodePieceNotFound, "conversation not found: "+conversationID)
	}

	var ids []types.ID
	for _, turn := range turns {
		for _, p := range turn.Pieces {
			ids = append(ids, p.ID)
		}
	}

	scores, err := s.GetScoresByPieceIDs(ctx, ids...)
	if err != nil {
		return err
	}

	doc := ConversationExport{
		ConversationID: conversationID,
		ExportedAt:     time.Now().UTC(),
		Turns:          turns,
		Scores:         scores,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode conversation export: %w", err)
	}
	return nil
}

// OrchestrationExport is the JSON document written by ExportOrchestration.
type OrchestrationExport struct {
	OrchestratorID string    `json:"orchestrator_id"`
	ExportedAt     time.Time `json:"exported_at"`
	Pieces         []Piece   `json:"pieces"`
	Scores         []Score   `json:"scores"`
}

// ExportOrchestration writes every piece owned by an orchestration, across
// all of its conversations, together with their scores.
func (s *SQLiteStore) ExportOrchestration(ctx context.Context, orchestratorID string, w io.Writer) error {
	pieces, err := s.GetByOrchestration(ctx, orchestratorID)
	if err != nil {
		return err
	}

	ids := make([]types.ID, len(pieces))
	for i, p := range pieces {
		ids[i] = p.ID
	}
	scores, err := s.GetScoresByPieceIDs(ctx, ids...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(OrchestrationExport{
		OrchestratorID: orchestratorID,
		ExportedAt:     time.Now().UTC(),
		Pieces:         pieces,
		Scores:         scores,
	}); err != nil {
		return fmt.Errorf("failed to encode orchestration export: %w", err)
	}
	return nil
}
