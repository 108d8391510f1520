package attack

import (
	"time"

	"github.com/zero-day-ai/crucible/internal/memory"
)

// Status is how a run ended.
type Status string

const (
	// StatusSucceeded means the success predicate was met.
	StatusSucceeded Status = "succeeded"

	// StatusExhausted means every turn was used without success.
	StatusExhausted Status = "exhausted"

	// StatusAborted means an error stopped the run. Turns persisted before
	// the error remain in the store.
	StatusAborted Status = "aborted"

	// StatusCancelled means the context was cancelled.
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusSucceeded, StatusExhausted, StatusAborted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Result describes a finished run.
type Result struct {
	Objective      string `json:"objective"`
	ConversationID string `json:"conversation_id"`
	OrchestratorID string `json:"orchestrator_id"`

	// AttackerConversationID is set when an attacker model generated the
	// prompts.
	AttackerConversationID string `json:"attacker_conversation_id,omitempty"`

	Status Status `json:"status"`
	State  State  `json:"-"`

	// Score is the last objective score, nil when no turn was scored.
	Score *memory.Score `json:"score,omitempty"`

	// Turns counts completed turns; backtracked turns are not included.
	Turns      int `json:"turns"`
	Backtracks int `json:"backtracks"`

	LastPrompt   string `json:"last_prompt,omitempty"`
	LastResponse string `json:"last_response,omitempty"`

	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the objective was achieved.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// ErrorString returns the error message, or "" when the run did not fail.
func (r *Result) ErrorString() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
