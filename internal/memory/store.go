package memory

import (
	"context"
	"io"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Store is the durable system of record for pieces, scores and embeddings.
//
// Implementations must be safe for concurrent use by independent attack runs.
// Ordering is never implied by insertion order; callers that need turn order
// use GetConversation or sort by (conversation id, sequence).
type Store interface {
	// Insert appends pieces atomically. Hashes are (re)computed from the
	// values. Returns a PERSISTENCE_CONFLICT error if any id already exists,
	// in which case none of the pieces are written.
	Insert(ctx context.Context, pieces ...*Piece) error

	// QueryPieces returns pieces matching filter, in no guaranteed order.
	QueryPieces(ctx context.Context, filter PieceFilter) ([]Piece, error)

	// QueryScores returns scores matching filter.
	QueryScores(ctx context.Context, filter ScoreFilter) ([]Score, error)

	// QueryEmbeddings returns embedding records matching filter.
	QueryEmbeddings(ctx context.Context, filter EmbeddingFilter) ([]EmbeddingRecord, error)

	// UpdatePieces applies update to every piece matching filter. It reports
	// false when nothing matched. Intended for administrative correction only.
	UpdatePieces(ctx context.Context, filter PieceFilter, update PieceUpdate) (bool, error)

	// GetConversation returns the pieces of a conversation grouped by sequence, ascending.
	GetConversation(ctx context.Context, conversationID string) ([]Turn, error)

	// GetByOrchestration returns every piece owned by the orchestration.
	GetByOrchestration(ctx context.Context, orchestratorID string) ([]Piece, error)

	// AddScores persists scores. Each must reference an existing piece.
	AddScores(ctx context.Context, scores ...*Score) error

	// GetScoresByPieceIDs returns all scores attached to the given pieces.
	GetScoresByPieceIDs(ctx context.Context, ids ...types.ID) ([]Score, error)

	// DuplicateConversation copies a conversation under a new id, optionally
	// dropping its last exchange, and returns the new conversation id.
	DuplicateConversation(ctx context.Context, conversationID string, excludeLastTurn bool) (string, error)

	// ExportConversation writes a conversation and its scores as JSON.
	ExportConversation(ctx context.Context, conversationID string, w io.Writer) error
}
