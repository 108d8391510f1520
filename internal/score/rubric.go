package score

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/crucible/internal/types"
)

//go:embed rubrics
var rubricFS embed.FS

var validate = validator.New()

// TrueFalseRubric defines what a true_false scorer should classify as "True".
type TrueFalseRubric struct {
	Category         string `yaml:"category" json:"category" validate:"required"`
	TrueDescription  string `yaml:"true_description" json:"true_description" validate:"required"`
	FalseDescription string `yaml:"false_description" json:"false_description" validate:"required"`
	Metadata         string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ScaleDescription is one level of a Likert scale.
type ScaleDescription struct {
	ScoreValue  string `yaml:"score_value" json:"score_value" validate:"required"`
	Description string `yaml:"description" json:"description" validate:"required"`
}

// LikertRubric defines the five levels of a float_scale scorer.
type LikertRubric struct {
	Category          string             `yaml:"category" json:"category" validate:"required"`
	ScaleDescriptions []ScaleDescription `yaml:"scale_descriptions" json:"scale_descriptions" validate:"required,dive"`
}

// Validate checks required fields.
func (r TrueFalseRubric) Validate() error {
	if err := validate.Struct(r); err != nil {
		return newInvalidRubricError(r.Category, formatValidation(err))
	}
	return nil
}

// Validate checks required fields and that the levels are exactly 1..5,
// each described once. Scores are normalized against that range.
func (r LikertRubric) Validate() error {
	if err := validate.Struct(r); err != nil {
		return newInvalidRubricError(r.Category, formatValidation(err))
	}
	seen := make(map[int]bool, likertMax-likertMin+1)
	for _, d := range r.ScaleDescriptions {
		n, err := strconv.Atoi(strings.TrimSpace(d.ScoreValue))
		if err != nil {
			return newInvalidRubricError(r.Category, fmt.Sprintf("score_value %q is not an integer", d.ScoreValue))
		}
		if n < likertMin || n > likertMax {
			return newInvalidRubricError(r.Category,
				fmt.Sprintf("score_value %d outside %d..%d", n, likertMin, likertMax))
		}
		if seen[n] {
			return newInvalidRubricError(r.Category, fmt.Sprintf("score_value %d described more than once", n))
		}
		seen[n] = true
	}
	for n := likertMin; n <= likertMax; n++ {
		if !seen[n] {
			return newInvalidRubricError(r.Category, fmt.Sprintf("score_value %d has no description", n))
		}
	}
	return nil
}

// ScaleText renders the levels as the scorer system prompt expects them,
// one "'N': description" line per level.
func (r LikertRubric) ScaleText() string {
	var sb strings.Builder
	for _, d := range r.ScaleDescriptions {
		fmt.Fprintf(&sb, "'%s': %s\n", strings.TrimSpace(d.ScoreValue), strings.TrimSpace(d.Description))
	}
	return sb.String()
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// ParseTrueFalseRubric decodes and validates a true_false rubric.
func ParseTrueFalseRubric(data []byte, source string) (TrueFalseRubric, error) {
	var r TrueFalseRubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, types.WrapError(ErrCodeInvalidRubric, "failed to parse rubric "+source, err)
	}
	r.TrueDescription = strings.TrimSpace(r.TrueDescription)
	r.FalseDescription = strings.TrimSpace(r.FalseDescription)
	return r, r.Validate()
}

// ParseLikertRubric decodes and validates a Likert rubric.
func ParseLikertRubric(data []byte, source string) (LikertRubric, error) {
	var r LikertRubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, types.WrapError(ErrCodeInvalidRubric, "failed to parse rubric "+source, err)
	}
	return r, r.Validate()
}

// LoadTrueFalseRubric reads a true_false rubric from a YAML file.
func LoadTrueFalseRubric(filePath string) (TrueFalseRubric, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return TrueFalseRubric{}, types.WrapError(ErrCodeRubricNotFound, "failed to read rubric", err)
	}
	return ParseTrueFalseRubric(data, filePath)
}

// LoadLikertRubric reads a Likert rubric from a YAML file.
func LoadLikertRubric(filePath string) (LikertRubric, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return LikertRubric{}, types.WrapError(ErrCodeRubricNotFound, "failed to read rubric", err)
	}
	return ParseLikertRubric(data, filePath)
}

// Builtin rubric names.
const (
	RubricPromptInjection = "prompt_injection"
	RubricPasswordLeak    = "password_leak"
	RubricRefusal         = "refusal"

	RubricHarm           = "harm"
	RubricCyber          = "cyber"
	RubricMisinformation = "misinformation"
)

// BuiltinTrueFalseRubric returns an embedded true_false rubric.
func BuiltinTrueFalseRubric(name string) (TrueFalseRubric, error) {
	data, err := readBuiltin("true_false", name)
	if err != nil {
		return TrueFalseRubric{}, err
	}
	return ParseTrueFalseRubric(data, name)
}

// BuiltinLikertRubric returns an embedded Likert rubric.
func BuiltinLikertRubric(name string) (LikertRubric, error) {
	data, err := readBuiltin("likert", name)
	if err != nil {
		return LikertRubric{}, err
	}
	return ParseLikertRubric(data, name)
}

// BuiltinRubricNames lists the embedded rubrics of a kind ("true_false" or
// "likert"), sorted.
func BuiltinRubricNames(kind string) []string {
	entries, err := fs.ReadDir(rubricFS, path.Join("rubrics", kind))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

func readBuiltin(kind, name string) ([]byte, error) {
	data, err := rubricFS.ReadFile(path.Join("rubrics", kind, name+".yaml"))
	if err != nil {
		return nil, types.WrapError(ErrCodeRubricNotFound,
			fmt.Sprintf("no builtin %s rubric named %q", kind, name), err)
	}
	return data, nil
}
