package attack

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Attack error codes
const (
	ErrCodeInvalidOptions types.ErrorCode = "ATTACK_INVALID_OPTIONS"
	ErrCodeAttackerFailed types.ErrorCode = "ATTACK_ATTACKER_FAILED"
	ErrCodePersistFailed  types.ErrorCode = "ATTACK_PERSIST_FAILED"
	ErrCodeIllegalState   types.ErrorCode = "ATTACK_ILLEGAL_STATE"
)

func newInvalidOptionsError(reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidOptions, "invalid attack options: "+reason)
}

// newStateError records which state a run was in when it failed.
func newStateError(state State, turn int, cause error) error {
	return fmt.Errorf("attack aborted in %s on turn %d: %w", state, turn, cause)
}
