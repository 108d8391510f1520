package target

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Target error codes
const (
	ErrCodeInvalidRequest    types.ErrorCode = "TARGET_INVALID_REQUEST"
	ErrCodeSendFailed        types.ErrorCode = "TARGET_SEND_FAILED"
	ErrCodeConversationExist types.ErrorCode = "TARGET_CONVERSATION_EXISTS"
	ErrCodeExtractFailed     types.ErrorCode = "TARGET_EXTRACT_FAILED"
	ErrCodeInvalidConfig     types.ErrorCode = "TARGET_INVALID_CONFIG"
)

// NewUnavailableError reports a target that could not be reached or that
// refused the credentials.
func NewUnavailableError(target string, cause error) *types.CrucibleError {
	return types.WrapError(types.TARGET_UNAVAILABLE, fmt.Sprintf("target %s is unavailable", target), cause)
}

// IsUnavailable reports whether err is a TARGET_UNAVAILABLE failure.
func IsUnavailable(err error) bool {
	return types.HasCode(err, types.TARGET_UNAVAILABLE)
}

func newInvalidRequestError(reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidRequest, "invalid request: "+reason)
}
