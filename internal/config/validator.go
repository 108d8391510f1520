package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate checks struct tags first, then the references between sections:
// attack and scorer entries must name targets and scorers that exist, and
// chat targets must name a configured provider.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}

	if err := v.validate.Struct(cfg); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return types.WrapError(types.CONFIG_VALIDATION_FAILED, "validation error", err)
		}

		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
		return failed(messages)
	}

	var messages []string
	ref := func(field, name string, ok bool) {
		if name != "" && !ok {
			messages = append(messages, fmt.Sprintf("%s refers to unknown entry %q", field, name))
		}
	}

	_, ok := cfg.Targets[cfg.Attack.Target]
	ref("attack.target", cfg.Attack.Target, ok)
	_, ok = cfg.Targets[cfg.Attack.Attacker]
	ref("attack.attacker", cfg.Attack.Attacker, ok)
	_, ok = cfg.Scorers[cfg.Attack.Scorer]
	ref("attack.scorer", cfg.Attack.Scorer, ok)
	_, ok = cfg.Scorers[cfg.Attack.RefusalScorer]
	ref("attack.refusal_scorer", cfg.Attack.RefusalScorer, ok)
	_, ok = cfg.LLM.Providers[cfg.LLM.Transformer]
	ref("llm.transformer", cfg.LLM.Transformer, ok)

	for _, name := range sortedKeys(cfg.Scorers) {
		_, ok := cfg.Targets[cfg.Scorers[name].Target]
		ref("scorers."+name+".target", cfg.Scorers[name].Target, ok)
	}
	for _, name := range sortedKeys(cfg.Targets) {
		spec := cfg.Targets[name]
		if spec.Type == target.TypeChat {
			_, ok := cfg.LLM.Providers[spec.Provider]
			if spec.Provider == "" {
				messages = append(messages, fmt.Sprintf("targets.%s.provider is required for chat targets", name))
			}
			ref("targets."+name+".provider", spec.Provider, ok)
		}
		if spec.Type == target.TypeHTTP && spec.HTTP.URL == "" {
			messages = append(messages, fmt.Sprintf("targets.%s.http.url is required for http targets", name))
		}
	}

	if len(messages) > 0 {
		return failed(messages)
	}
	return nil
}

func failed(messages []string) error {
	return types.NewError(types.CONFIG_VALIDATION_FAILED,
		"configuration validation failed:\n  - "+strings.Join(messages, "\n  - "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", fieldPath, e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts validator namespace to a more readable field path.
// Example: "Config.Attack.MaxTurns" -> "attack.max_turns"
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}

	result := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		result = append(result, camelToSnake(parts[i]))
	}
	return strings.Join(result, ".")
}

// camelToSnake converts CamelCase to snake_case. Runs of capitals such as
// "LLM" stay together, and map keys in brackets are kept as written.
func camelToSnake(s string) string {
	key := ""
	if i := strings.IndexByte(s, '['); i >= 0 {
		s, key = s[:i], s[i:]
	}

	runes := []rune(s)
	var result strings.Builder
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String()) + key
}
