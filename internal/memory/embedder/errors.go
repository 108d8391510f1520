package embedder

import "github.com/zero-day-ai/crucible/internal/types"

// Embedder error codes
const (
	ErrCodeEmbedderUnavailable  types.ErrorCode = "EMBEDDER_UNAVAILABLE"
	ErrCodeEmbeddingFailed      types.ErrorCode = "EMBEDDING_FAILED"
	ErrCodeEmbeddingBatchFailed types.ErrorCode = "EMBEDDING_BATCH_FAILED"
	ErrCodeInvalidConfig        types.ErrorCode = "INVALID_EMBEDDER_CONFIG"
)

// NewEmbeddingError wraps a failure to embed a single text.
func NewEmbeddingError(message string, cause error) *types.CrucibleError {
	return types.WrapError(ErrCodeEmbeddingFailed, message, cause)
}

// NewEmbeddingBatchError wraps a failure to embed a batch of texts.
func NewEmbeddingBatchError(message string, cause error) *types.CrucibleError {
	return types.WrapError(ErrCodeEmbeddingBatchFailed, message, cause)
}
