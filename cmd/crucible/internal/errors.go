package internal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/internal/attack"
	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Exit code constants for the CLI. Attack outcomes use the same values as
// the attack package so scripts see one scheme.
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitObjectiveAchieved indicates at least one attack achieved its objective
	ExitObjectiveAchieved = attack.ExitAchieved
	// ExitError indicates a general error
	ExitError = attack.ExitError
	// ExitCancelled indicates the operation was cancelled
	ExitCancelled = attack.ExitCancelled
	// ExitConfigError indicates a configuration error
	ExitConfigError = attack.ExitConfigError
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
	}
}

// ExitWith returns an error that only carries an exit code. HandleError
// prints nothing for it; the command has already reported the outcome.
func ExitWith(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return &CLIError{Code: code}
}

// HandleError handles an error and returns the appropriate exit code
// It also prints the error message to the command's error output
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Message == "" && cliErr.Cause == nil {
			return cliErr.Code
		}
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil && IsVerbose() {
			cmd.PrintErrln("Cause:", cliErr.Cause)
		}
		return cliErr.Code
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}

	var crucibleErr *types.CrucibleError
	if errors.As(err, &crucibleErr) {
		cmd.PrintErrln("Error:", crucibleErr.Error())
		return exitCodeFor(crucibleErr)
	}

	// Generic error
	cmd.PrintErrln("Error:", err)
	return ExitError
}

// exitCodeFor maps error codes onto exit codes. Configuration problems are
// reported separately so CI jobs can tell a broken setup from a failed run.
func exitCodeFor(err *types.CrucibleError) int {
	switch err.Code {
	case types.CONFIG_LOAD_FAILED,
		types.CONFIG_PARSE_FAILED,
		types.CONFIG_VALIDATION_FAILED,
		types.CONFIG_NOT_FOUND,
		attack.ErrCodeInvalidOptions,
		target.ErrCodeInvalidConfig,
		transform.ErrCodeInvalidSpec,
		transform.ErrCodeUnknownType:
		return ExitConfigError
	case llm.ErrContextCanceled:
		return ExitCancelled
	default:
		return ExitError
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var crucibleErr *types.CrucibleError
	if errors.As(err, &crucibleErr) {
		return crucibleErr.Retryable
	}
	return false
}

// IsVerbose checks if verbose mode is enabled via environment variable or flag
// This is used for panic recovery to determine if stack traces should be shown
func IsVerbose() bool {
	if os.Getenv("CRUCIBLE_VERBOSE") != "" {
		return true
	}

	for _, arg := range os.Args {
		if arg == "-v" || arg == "--verbose" {
			return true
		}
	}

	return false
}
