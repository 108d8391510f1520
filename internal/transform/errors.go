package transform

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Transform error codes
const (
	ErrCodeInvalidSpec     types.ErrorCode = "TRANSFORM_INVALID_SPEC"
	ErrCodeUnknownType     types.ErrorCode = "TRANSFORM_UNKNOWN_TYPE"
	ErrCodeOperatorFailed  types.ErrorCode = "TRANSFORM_OPERATOR_FAILED"
	ErrCodeInvalidDecision types.ErrorCode = "TRANSFORM_INVALID_DECISION"
	ErrCodeModelFailed     types.ErrorCode = "TRANSFORM_MODEL_FAILED"
)

// NewUnsupportedInputError reports a transformer that cannot handle dt.
func NewUnsupportedInputError(transformer string, dt types.DataType) *types.CrucibleError {
	return types.NewError(types.UNSUPPORTED_INPUT_TYPE,
		fmt.Sprintf("transformer %s does not support input type %s", transformer, dt))
}

// IsUnsupportedInput reports whether err is an unsupported input type failure.
func IsUnsupportedInput(err error) bool {
	return types.HasCode(err, types.UNSUPPORTED_INPUT_TYPE)
}

// NewOperatorError wraps a failure talking to the human operator.
func NewOperatorError(cause error) *types.CrucibleError {
	return types.WrapError(ErrCodeOperatorFailed, "human operator interaction failed", cause)
}
