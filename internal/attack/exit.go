package attack

// Exit codes for the attack command, so scripts and CI jobs can branch on
// the outcome:
//
//	0  - the target resisted every turn
//	1  - the objective was achieved
//	3  - the run aborted on an error
//	5  - the run was cancelled
//	10 - invalid configuration
const (
	ExitResisted    = 0
	ExitAchieved    = 1
	ExitError       = 3
	ExitCancelled   = 5
	ExitConfigError = 10
)

// ExitCodeFromResults picks the exit code for a batch of runs. Errors win
// over cancellation, which wins over success.
func ExitCodeFromResults(results ...*Result) int {
	code := ExitResisted
	for _, r := range results {
		switch c := ExitCodeFromResult(r); {
		case c == ExitError:
			return ExitError
		case c == ExitCancelled:
			code = ExitCancelled
		case c == ExitAchieved && code == ExitResisted:
			code = ExitAchieved
		}
	}
	return code
}

// ExitCodeFromResult maps one run onto an exit code.
func ExitCodeFromResult(result *Result) int {
	if result == nil {
		return ExitError
	}
	switch result.Status {
	case StatusSucceeded:
		return ExitAchieved
	case StatusCancelled:
		return ExitCancelled
	case StatusAborted:
		return ExitError
	default:
		return ExitResisted
	}
}
