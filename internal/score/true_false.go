package score

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

// TrueFalseScorer asks a chat target whether a piece matches a rubric's
// true description.
type TrueFalseScorer struct {
	*selfAsk
	rubric TrueFalseRubric
}

// NewTrueFalseScorer validates rubric and installs the scoring system prompt
// on chat. The target must support system prompts.
func NewTrueFalseScorer(ctx context.Context, chat target.Target, rubric TrueFalseRubric, opts ...Option) (*TrueFalseScorer, error) {
	if err := rubric.Validate(); err != nil {
		return nil, err
	}
	s := &TrueFalseScorer{
		selfAsk: newSelfAsk("true_false", chat, opts),
		rubric:  rubric,
	}
	params := map[string]any{
		"true_description":  rubric.TrueDescription,
		"false_description": rubric.FalseDescription,
		"metadata":          rubric.Metadata,
	}
	if err := s.setSystemPrompt(ctx, prompt.BuiltinTrueFalseSystem, params, s.Identifier()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TrueFalseScorer) Type() memory.ScoreType {
	return memory.ScoreTypeTrueFalse
}

func (s *TrueFalseScorer) Identifier() types.Identifier {
	return types.NewIdentifier("TrueFalseScorer", s.conversationID).With("category", s.rubric.Category)
}

// Category returns the rubric category.
func (s *TrueFalseScorer) Category() string {
	return s.rubric.Category
}

func (s *TrueFalseScorer) Score(ctx context.Context, piece *memory.Piece) ([]memory.Score, error) {
	return s.run(ctx, piece, s.rubric.Category, func(ctx context.Context) (memory.Score, error) {
		reply, err := s.ask(ctx, piece)
		if err != nil {
			return memory.Score{}, err
		}

		obj, err := llm.ParseObject(reply, false, "value", "description", "rationale")
		if err != nil {
			return memory.Score{}, NewMalformedResponseError(s.name, reply, err)
		}

		var verdict bool
		switch raw := strings.TrimSpace(llm.StringField(obj, "value")); {
		case strings.EqualFold(raw, "true"):
			verdict = true
		case strings.EqualFold(raw, "false"):
			verdict = false
		default:
			return memory.Score{}, NewMalformedResponseError(s.name, reply,
				fmt.Errorf("value %q is neither True nor False", raw))
		}

		return memory.Score{
			ID:               types.NewID(),
			Value:            memory.FormatBool(verdict),
			ValueDescription: llm.StringField(obj, "description"),
			Type:             memory.ScoreTypeTrueFalse,
			Category:         s.rubric.Category,
			Rationale:        llm.StringField(obj, "rationale"),
			Metadata:         llm.StringField(obj, "metadata"),
			ScorerIdentifier: s.Identifier(),
			PieceID:          piece.ID,
			Timestamp:        time.Now().UTC(),
		}, nil
	})
}
