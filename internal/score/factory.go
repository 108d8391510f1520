package score

import (
	"context"

	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Spec describes a scorer as written in configuration. Rubric names a
// builtin rubric; RubricPath points at a YAML file and wins when both are set.
type Spec struct {
	Type       string `mapstructure:"type" yaml:"type" json:"type" validate:"required,oneof=true_false float_scale likert"`
	Rubric     string `mapstructure:"rubric" yaml:"rubric,omitempty" json:"rubric,omitempty"`
	RubricPath string `mapstructure:"rubric_path" yaml:"rubric_path,omitempty" json:"rubric_path,omitempty"`
}

// Build creates the scorer described by spec on top of chat.
func Build(ctx context.Context, spec Spec, chat target.Target, opts ...Option) (Scorer, error) {
	if spec.Rubric == "" && spec.RubricPath == "" {
		return nil, types.NewError(ErrCodeInvalidRubric, "scorer needs a rubric or rubric_path")
	}

	switch memory.ScoreType(spec.Type) {
	case memory.ScoreTypeTrueFalse:
		var rubric TrueFalseRubric
		var err error
		if spec.RubricPath != "" {
			rubric, err = LoadTrueFalseRubric(spec.RubricPath)
		} else {
			rubric, err = BuiltinTrueFalseRubric(spec.Rubric)
		}
		if err != nil {
			return nil, err
		}
		return NewTrueFalseScorer(ctx, chat, rubric, opts...)

	case memory.ScoreTypeFloatScale, "likert":
		var rubric LikertRubric
		var err error
		if spec.RubricPath != "" {
			rubric, err = LoadLikertRubric(spec.RubricPath)
		} else {
			rubric, err = BuiltinLikertRubric(spec.Rubric)
		}
		if err != nil {
			return nil, err
		}
		return NewLikertScorer(ctx, chat, rubric, opts...)

	default:
		return nil, types.NewError(ErrCodeUnknownType, "unknown scorer type: "+spec.Type)
	}
}
