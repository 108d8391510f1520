package transform

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/language"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Transformer type names accepted by Build.
const (
	TypeBase64      = "base64"
	TypeROT13       = "rot13"
	TypeLeetspeak   = "leetspeak"
	TypeEmoji       = "emoji"
	TypeCase        = "case"
	TypeStringJoin  = "string_join"
	TypeVariation   = "variation"
	TypeTranslation = "translation"
	TypeHumanGate   = "human_gate"
)

// Spec describes one transformer as written in configuration.
type Spec struct {
	Type    string         `mapstructure:"type" yaml:"type" json:"type" validate:"required"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty"`
}

// Deps are the collaborators some transformers need.
type Deps struct {
	// Provider backs the variation and translation transformers.
	Provider llm.LLMProvider

	// Operator answers the human gate.
	Operator Operator

	// Retry is applied to model-backed transformers.
	Retry llm.RetryPolicy

	Logger *slog.Logger
}

type leetOptions struct {
	Substitutions map[string]string `mapstructure:"substitutions"`
}

type emojiOptions struct {
	Seed int64 `mapstructure:"seed"`
}

type caseOptions struct {
	Mode     string `mapstructure:"mode"`
	Language string `mapstructure:"language"`
}

type joinOptions struct {
	Separator string `mapstructure:"separator"`
}

type modelOptions struct {
	Model     string   `mapstructure:"model"`
	Languages []string `mapstructure:"languages"`
}

type gateOptions struct {
	Transformers []Spec `mapstructure:"transformers"`
}

// Build creates the transformer described by spec.
func Build(spec Spec, deps Deps) (Transformer, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = llm.DefaultRetryPolicy()
	}

	switch strings.ToLower(spec.Type) {
	case TypeBase64:
		return NewBase64Transformer(), nil

	case TypeROT13:
		return NewROT13Transformer(), nil

	case TypeLeetspeak:
		var opts leetOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		var subs map[rune]string
		if len(opts.Substitutions) > 0 {
			subs = make(map[rune]string, len(opts.Substitutions))
			for k, v := range opts.Substitutions {
				r := []rune(strings.ToLower(k))
				if len(r) != 1 {
					return nil, types.NewError(ErrCodeInvalidSpec, fmt.Sprintf("leetspeak key %q must be a single character", k))
				}
				subs[r[0]] = v
			}
		}
		return NewLeetspeakTransformer(subs), nil

	case TypeEmoji:
		var opts emojiOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		return NewEmojiTransformer(opts.Seed), nil

	case TypeCase:
		var opts caseOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		tag := language.Und
		if opts.Language != "" {
			parsed, err := language.Parse(opts.Language)
			if err != nil {
				return nil, types.WrapError(ErrCodeInvalidSpec, "invalid case language", err)
			}
			tag = parsed
		}
		return NewCaseTransformer(CaseMode(strings.ToLower(opts.Mode)), tag)

	case TypeStringJoin:
		var opts joinOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		return NewStringJoinTransformer(opts.Separator), nil

	case TypeVariation, TypeTranslation:
		if deps.Provider == nil {
			return nil, types.NewError(ErrCodeInvalidSpec, spec.Type+" transformer needs a model provider")
		}
		var opts modelOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		modelOpts := []ModelOption{WithRetryPolicy(deps.Retry), WithModelLogger(deps.Logger)}
		if opts.Model != "" {
			modelOpts = append(modelOpts, WithModel(opts.Model))
		}
		if strings.EqualFold(spec.Type, TypeVariation) {
			return NewVariationTransformer(deps.Provider, modelOpts...)
		}
		return NewTranslationTransformer(deps.Provider, opts.Languages, modelOpts...)

	case TypeHumanGate:
		if deps.Operator == nil {
			return nil, types.NewError(ErrCodeInvalidSpec, "human gate needs an operator")
		}
		var opts gateOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		subs, err := BuildAll(opts.Transformers, deps)
		if err != nil {
			return nil, fmt.Errorf("human gate: %w", err)
		}
		return NewHumanGate(deps.Operator, subs, deps.Logger), nil

	default:
		return nil, types.NewError(ErrCodeUnknownType, "unknown transformer type: "+spec.Type)
	}
}

// BuildAll builds every spec in order.
func BuildAll(specs []Spec, deps Deps) ([]Transformer, error) {
	out := make([]Transformer, 0, len(specs))
	for i, spec := range specs {
		t, err := Build(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("transformer %d (%s): %w", i, spec.Type, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeOptions(spec Spec, out any) error {
	if len(spec.Options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(spec.Options); err != nil {
		return types.WrapError(ErrCodeInvalidSpec, "invalid options for "+spec.Type, err)
	}
	return nil
}
