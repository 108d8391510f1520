package verbose

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// TextVerboseFormatter formats events as human-readable text:
//
//	HH:MM:SS.mmm [TURN] Turn 2 sent (conversation 3f0c...)
//	└─ Detail line
type TextVerboseFormatter struct {
	noColor bool
}

// NewTextVerboseFormatter creates a new text formatter.
func NewTextVerboseFormatter(noColor bool) *TextVerboseFormatter {
	return &TextVerboseFormatter{noColor: noColor}
}

// Format converts a VerboseEvent to a formatted text string.
func (f *TextVerboseFormatter) Format(event VerboseEvent) string {
	var sb strings.Builder

	component := strings.ToUpper(strings.SplitN(string(event.Type), ".", 2)[0])
	fmt.Fprintf(&sb, "%s [%s] %s\n",
		f.paint(color.FgHiBlack, event.Timestamp.Format("15:04:05.000")),
		f.paint(f.componentColor(event), component),
		f.message(event))

	for _, detail := range f.details(event) {
		fmt.Fprintf(&sb, "%s%s\n", f.paint(color.FgHiBlack, "└─ "), detail)
	}
	return sb.String()
}

func (f *TextVerboseFormatter) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if f.noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}

func (f *TextVerboseFormatter) componentColor(event VerboseEvent) color.Attribute {
	switch event.Type {
	case EventAttackFailed:
		return color.FgRed
	case EventTurnBacktracked:
		return color.FgMagenta
	case EventTurnScored:
		if data, ok := event.Payload.(*TurnScoredData); ok && data.Achieved {
			return color.FgGreen
		}
		return color.FgYellow
	case EventAttackStarted, EventAttackCompleted:
		return color.FgBlue
	default:
		return color.FgCyan
	}
}

func (f *TextVerboseFormatter) message(event VerboseEvent) string {
	switch event.Type {
	case EventAttackStarted:
		if data, ok := event.Payload.(*AttackStartedData); ok {
			return fmt.Sprintf("Attack started: %s (max_turns=%d)", truncate(data.Objective, 120), data.MaxTurns)
		}
	case EventAttackCompleted:
		if data, ok := event.Payload.(*AttackCompletedData); ok {
			return fmt.Sprintf("Attack %s after %d turns (backtracks=%d, duration=%s)",
				data.Status, data.Turns, data.Backtracks, data.Duration.Round(time.Millisecond))
		}
	case EventAttackFailed:
		if data, ok := event.Payload.(*AttackFailedData); ok {
			return fmt.Sprintf("Attack %s after %d turns: %s", data.Status, data.Turns, truncate(data.Error, 200))
		}
	case EventTurnSent:
		if _, ok := event.Payload.(*TurnSentData); ok {
			return fmt.Sprintf("Turn %d sent (conversation %s)", event.Turn, event.ConversationID)
		}
	case EventTurnReplied:
		if data, ok := event.Payload.(*TurnRepliedData); ok {
			return fmt.Sprintf("Turn %d replied (duration=%s)", event.Turn, data.Duration.Round(time.Millisecond))
		}
	case EventTurnScored:
		if data, ok := event.Payload.(*TurnScoredData); ok {
			verdict := "not achieved"
			if data.Achieved {
				verdict = "achieved"
			}
			return fmt.Sprintf("Turn %d scored %s=%s (%s)", event.Turn, data.Category, data.Value, verdict)
		}
	case EventTurnBacktracked:
		if data, ok := event.Payload.(*TurnBacktrackedData); ok {
			return fmt.Sprintf("Turn %d refused, backtracking (%d so far)", event.Turn, data.Backtracks)
		}
	}
	return string(event.Type)
}

func (f *TextVerboseFormatter) details(event VerboseEvent) []string {
	var details []string
	switch data := event.Payload.(type) {
	case *TurnSentData:
		details = append(details, "prompt: "+truncate(oneLine(data.Prompt), 200))
		if len(data.Transformers) > 0 {
			details = append(details, "transformers: "+strings.Join(data.Transformers, ", "))
			details = append(details, "converted: "+truncate(oneLine(data.Converted), 200))
		}
	case *TurnRepliedData:
		details = append(details, "response: "+truncate(oneLine(data.Response), 200))
	case *TurnScoredData:
		if data.Rationale != "" {
			details = append(details, "rationale: "+truncate(oneLine(data.Rationale), 200))
		}
	case *TurnBacktrackedData:
		details = append(details, "refusal: "+truncate(oneLine(data.Response), 200))
		details = append(details, "new conversation: "+data.NewConversationID)
	}
	return details
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to maxLen runes with a "..." suffix.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

var _ VerboseFormatter = (*TextVerboseFormatter)(nil)
