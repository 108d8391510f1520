package memory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// ScoreType tags how a score value is encoded.
type ScoreType string

const (
	ScoreTypeTrueFalse  ScoreType = "true_false"
	ScoreTypeFloatScale ScoreType = "float_scale"
)

// IsValid checks if the ScoreType is a known value
func (t ScoreType) IsValid() bool {
	return t == ScoreTypeTrueFalse || t == ScoreTypeFloatScale
}

// Literal values stored for true_false scores.
const (
	ScoreValueTrue  = "True"
	ScoreValueFalse = "False"
)

// Score is a verdict attached to exactly one piece. Scores are immutable.
type Score struct {
	ID               types.ID         `json:"id"`
	Value            string           `json:"score_value"`
	ValueDescription string           `json:"score_value_description"`
	Type             ScoreType        `json:"score_type"`
	Category         string           `json:"score_category"`
	Rationale        string           `json:"score_rationale"`
	Metadata         string           `json:"score_metadata,omitempty"`
	ScorerIdentifier types.Identifier `json:"scorer_class_identifier"`
	PieceID          types.ID         `json:"prompt_request_response_id"`
	Timestamp        time.Time        `json:"timestamp"`
}

// FormatBool encodes a true_false verdict as its stored literal.
func FormatBool(b bool) string {
	if b {
		return ScoreValueTrue
	}
	return ScoreValueFalse
}

// FormatFloat encodes a float_scale value with the shortest exact representation.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Bool decodes a true_false score.
func (s *Score) Bool() (bool, error) {
	if s.Type != ScoreTypeTrueFalse {
		return false, fmt.Errorf("score %s is %s, not %s", s.ID, s.Type, ScoreTypeTrueFalse)
	}
	switch s.Value {
	case ScoreValueTrue:
		return true, nil
	case ScoreValueFalse:
		return false, nil
	default:
		return false, fmt.Errorf("score %s has non-literal boolean value %q", s.ID, s.Value)
	}
}

// Float decodes a float_scale score.
func (s *Score) Float() (float64, error) {
	if s.Type != ScoreTypeFloatScale {
		return 0, fmt.Errorf("score %s is %s, not %s", s.ID, s.Type, ScoreTypeFloatScale)
	}
	v, err := strconv.ParseFloat(s.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("score %s has non-numeric value %q: %w", s.ID, s.Value, err)
	}
	return v, nil
}

// Validate checks the fields the store relies on.
func (s *Score) Validate() error {
	if err := s.ID.Validate(); err != nil {
		return NewInvalidScoreError(s.ID, err.Error())
	}
	if err := s.PieceID.Validate(); err != nil {
		return NewInvalidScoreError(s.ID, "piece id: "+err.Error())
	}
	if !s.Type.IsValid() {
		return NewInvalidScoreError(s.ID, "unknown score type "+string(s.Type))
	}

	switch s.Type {
	case ScoreTypeTrueFalse:
		if _, err := s.Bool(); err != nil {
			return NewInvalidScoreError(s.ID, err.Error())
		}
	case ScoreTypeFloatScale:
		v, err := s.Float()
		if err != nil {
			return NewInvalidScoreError(s.ID, err.Error())
		}
		if v < 0 || v > 1 {
			return NewInvalidScoreError(s.ID, fmt.Sprintf("float_scale value %v outside [0,1]", v))
		}
	}
	return nil
}

// String renders the score for logs and feedback text.
func (s *Score) String() string {
	return fmt.Sprintf("%s: %s: %s", s.Category, s.Value, s.Rationale)
}
