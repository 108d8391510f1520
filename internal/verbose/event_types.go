package verbose

import (
	"time"
)

// VerboseEventType identifies the type of verbose event.
type VerboseEventType string

// Attack event types
const (
	EventAttackStarted   VerboseEventType = "attack.started"
	EventAttackCompleted VerboseEventType = "attack.completed"
	EventAttackFailed    VerboseEventType = "attack.failed"
)

// Turn event types
const (
	EventTurnSent        VerboseEventType = "turn.sent"
	EventTurnReplied     VerboseEventType = "turn.replied"
	EventTurnScored      VerboseEventType = "turn.scored"
	EventTurnBacktracked VerboseEventType = "turn.backtracked"
)

// String returns the string representation of the event type.
func (t VerboseEventType) String() string {
	return string(t)
}

// VerboseLevel represents the verbosity level for events.
type VerboseLevel int

const (
	LevelNone        VerboseLevel = 0
	LevelVerbose     VerboseLevel = 1
	LevelVeryVerbose VerboseLevel = 2
)

// VerboseEvent is one entry of the live attack feed.
type VerboseEvent struct {
	Type           VerboseEventType `json:"type"`
	Level          VerboseLevel     `json:"level"`
	Timestamp      time.Time        `json:"timestamp"`
	OrchestratorID string           `json:"orchestrator_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Turn           int              `json:"turn,omitempty"`
	Payload        any              `json:"payload,omitempty"`
}

// NewVerboseEvent creates an event stamped with the current time.
func NewVerboseEvent(eventType VerboseEventType, level VerboseLevel, payload any) VerboseEvent {
	return VerboseEvent{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// AttackStartedData is the payload of EventAttackStarted.
type AttackStartedData struct {
	Objective string `json:"objective"`
	MaxTurns  int    `json:"max_turns"`
	Attacker  bool   `json:"attacker"`
}

// AttackCompletedData is the payload of EventAttackCompleted.
type AttackCompletedData struct {
	Status     string        `json:"status"`
	Turns      int           `json:"turns"`
	Backtracks int           `json:"backtracks"`
	Duration   time.Duration `json:"duration"`
}

// AttackFailedData is the payload of EventAttackFailed.
type AttackFailedData struct {
	Status string `json:"status"`
	Turns  int    `json:"turns"`
	Error  string `json:"error"`
}

// TurnSentData is the payload of EventTurnSent.
type TurnSentData struct {
	Prompt       string   `json:"prompt"`
	Converted    string   `json:"converted"`
	Transformers []string `json:"transformers,omitempty"`
}

// TurnRepliedData is the payload of EventTurnReplied.
type TurnRepliedData struct {
	Response string        `json:"response"`
	Duration time.Duration `json:"duration"`
}

// TurnScoredData is the payload of EventTurnScored.
type TurnScoredData struct {
	Category  string `json:"category"`
	Value     string `json:"value"`
	Rationale string `json:"rationale,omitempty"`
	Achieved  bool   `json:"achieved"`
}

// TurnBacktrackedData is the payload of EventTurnBacktracked.
type TurnBacktrackedData struct {
	Response          string `json:"response"`
	NewConversationID string `json:"new_conversation_id"`
	Backtracks        int    `json:"backtracks"`
}
