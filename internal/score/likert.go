package score

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

const (
	likertMin = 1
	likertMax = 5
)

// LikertScorer asks a chat target to place a piece on a five level scale and
// normalizes the level to [0,1].
type LikertScorer struct {
	*selfAsk
	rubric LikertRubric
}

// NewLikertScorer validates rubric and installs the scoring system prompt on
// chat. The target must support system prompts.
func NewLikertScorer(ctx context.Context, chat target.Target, rubric LikertRubric, opts ...Option) (*LikertScorer, error) {
	if err := rubric.Validate(); err != nil {
		return nil, err
	}
	s := &LikertScorer{
		selfAsk: newSelfAsk("likert", chat, opts),
		rubric:  rubric,
	}
	params := map[string]any{
		"category":     rubric.Category,
		"likert_scale": rubric.ScaleText(),
	}
	if err := s.setSystemPrompt(ctx, prompt.BuiltinLikertSystem, params, s.Identifier()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LikertScorer) Type() memory.ScoreType {
	return memory.ScoreTypeFloatScale
}

func (s *LikertScorer) Identifier() types.Identifier {
	return types.NewIdentifier("LikertScorer", s.conversationID).With("category", s.rubric.Category)
}

// Category returns the rubric category.
func (s *LikertScorer) Category() string {
	return s.rubric.Category
}

func (s *LikertScorer) Score(ctx context.Context, piece *memory.Piece) ([]memory.Score, error) {
	return s.run(ctx, piece, s.rubric.Category, func(ctx context.Context) (memory.Score, error) {
		reply, err := s.ask(ctx, piece)
		if err != nil {
			return memory.Score{}, err
		}

		obj, err := llm.ParseObject(reply, false, "score_value", "description", "rationale")
		if err != nil {
			return memory.Score{}, NewMalformedResponseError(s.name, reply, err)
		}

		raw := strings.Trim(strings.TrimSpace(llm.StringField(obj, "score_value")), `"'`)
		level, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return memory.Score{}, NewMalformedResponseError(s.name, reply,
				fmt.Errorf("score_value %q is not a number", raw))
		}
		if level != math.Trunc(level) || level < likertMin || level > likertMax {
			return memory.Score{}, NewMalformedResponseError(s.name, reply,
				fmt.Errorf("score_value %v is not a level between %d and %d", level, likertMin, likertMax))
		}

		return memory.Score{
			ID:               types.NewID(),
			Value:            memory.FormatFloat(NormalizeLikert(level)),
			ValueDescription: llm.StringField(obj, "description"),
			Type:             memory.ScoreTypeFloatScale,
			Category:         s.rubric.Category,
			Rationale:        llm.StringField(obj, "rationale"),
			ScorerIdentifier: s.Identifier(),
			PieceID:          piece.ID,
			Timestamp:        time.Now().UTC(),
		}, nil
	})
}

// NormalizeLikert maps a level in 1..5 onto [0,1].
func NormalizeLikert(level float64) float64 {
	return (level - likertMin) / (likertMax - likertMin)
}
