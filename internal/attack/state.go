package attack

// State is a step of the attack loop.
type State int

const (
	StateInit State = iota
	StateRenderPrompt
	StateTransform
	StateAwaitTarget
	StatePersistTurn
	StateScore
	StateDecide
	StateComplete
	StateAborted
)

var stateNames = [...]string{
	StateInit:         "INIT",
	StateRenderPrompt: "RENDER_PROMPT",
	StateTransform:    "TRANSFORM",
	StateAwaitTarget:  "AWAIT_TARGET",
	StatePersistTurn:  "PERSIST_TURN",
	StateScore:        "SCORE",
	StateDecide:       "DECIDE",
	StateComplete:     "COMPLETE",
	StateAborted:      "ABORTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// IsTerminal reports whether the run has stopped.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateAborted
}

// next lists the legal transitions out of each state.
var next = map[State][]State{
	StateInit:         {StateRenderPrompt, StateAborted},
	StateRenderPrompt: {StateTransform, StateAborted},
	StateTransform:    {StateAwaitTarget, StateAborted},
	StateAwaitTarget:  {StatePersistTurn, StateAborted},
	StatePersistTurn:  {StateScore, StateAborted},
	StateScore:        {StateDecide, StateRenderPrompt, StateAborted},
	StateDecide:       {StateRenderPrompt, StateComplete, StateAborted},
}

// CanTransition reports whether the loop may move from s to to.
func (s State) CanTransition(to State) bool {
	for _, allowed := range next[s] {
		if allowed == to {
			return true
		}
	}
	return false
}
