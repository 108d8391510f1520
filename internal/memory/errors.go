package memory

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Memory error codes
const (
	ErrCodePieceNotFound   types.ErrorCode = "MEMORY_PIECE_NOT_FOUND"
	ErrCodeInvalidPiece    types.ErrorCode = "MEMORY_INVALID_PIECE"
	ErrCodeInvalidScore    types.ErrorCode = "MEMORY_INVALID_SCORE"
	ErrCodeInvalidFilter   types.ErrorCode = "MEMORY_INVALID_FILTER"
	ErrCodeEmbeddingFailed types.ErrorCode = "MEMORY_EMBEDDING_FAILED"
)

// NewPersistenceConflictError reports an insert of an identifier that already exists.
func NewPersistenceConflictError(kind string, id types.ID, cause error) *types.CrucibleError {
	return types.WrapError(types.PERSISTENCE_CONFLICT, fmt.Sprintf("%s %s already exists", kind, id), cause)
}

// NewInvalidPieceError reports a piece that fails validation before insert.
func NewInvalidPieceError(id types.ID, reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidPiece, fmt.Sprintf("invalid piece %s: %s", id, reason))
}

// NewInvalidScoreError reports a score that fails validation before insert.
func NewInvalidScoreError(id types.ID, reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidScore, fmt.Sprintf("invalid score %s: %s", id, reason))
}

// NewPieceNotFoundError reports a lookup or reference to a missing piece.
func NewPieceNotFoundError(id types.ID) *types.CrucibleError {
	return types.NewError(ErrCodePieceNotFound, "piece not found: "+id.String())
}

// NewStoreError wraps a database failure.
func NewStoreError(message string, cause error) *types.CrucibleError {
	return types.WrapError(types.DB_QUERY_FAILED, message, cause)
}

// IsPersistenceConflict reports whether err is a duplicate identifier failure.
func IsPersistenceConflict(err error) bool {
	return types.HasCode(err, types.PERSISTENCE_CONFLICT)
}
