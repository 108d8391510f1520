package score

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Score error codes
const (
	ErrCodeInvalidRubric   types.ErrorCode = "SCORE_INVALID_RUBRIC"
	ErrCodeRubricNotFound  types.ErrorCode = "SCORE_RUBRIC_NOT_FOUND"
	ErrCodeUnknownType     types.ErrorCode = "SCORE_UNKNOWN_TYPE"
	ErrCodeUnscorablePiece types.ErrorCode = "SCORE_UNSCORABLE_PIECE"
)

// NewMalformedResponseError reports a scorer reply that could not be used.
func NewMalformedResponseError(scorer, reply string, cause error) *types.CrucibleError {
	if len(reply) > 200 {
		reply = reply[:200] + "..."
	}
	return types.WrapError(types.MALFORMED_SCORER_RESPONSE,
		fmt.Sprintf("%s returned an unusable reply: %q", scorer, reply), cause)
}

// IsMalformedResponse reports whether err is a MALFORMED_SCORER_RESPONSE.
func IsMalformedResponse(err error) bool {
	return types.HasCode(err, types.MALFORMED_SCORER_RESPONSE)
}

func newInvalidRubricError(source, reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidRubric, fmt.Sprintf("invalid rubric %s: %s", source, reason))
}
