package prompt

import (
	"fmt"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Prompt error codes
const (
	ErrCodeInvalidSeed      types.ErrorCode = "PROMPT_INVALID_SEED"
	ErrCodeYAMLParse        types.ErrorCode = "PROMPT_YAML_PARSE"
	ErrCodeBuiltinNotFound  types.ErrorCode = "PROMPT_BUILTIN_NOT_FOUND"
	ErrCodeMissingSequence  types.ErrorCode = "PROMPT_MISSING_SEQUENCE"
	ErrCodeTemplateNotFound types.ErrorCode = "PROMPT_TEMPLATE_NOT_FOUND"
)

// NewTemplateRenderError reports a template that failed to parse or execute,
// or whose parameters do not match the supplied values.
func NewTemplateRenderError(name string, cause error) *types.CrucibleError {
	return types.WrapError(types.TEMPLATE_RENDER_ERROR, fmt.Sprintf("failed to render template %q", name), cause)
}

// NewYAMLParseError creates an error for YAML parsing failures.
func NewYAMLParseError(path string, cause error) *types.CrucibleError {
	return types.WrapError(ErrCodeYAMLParse, "failed to parse "+path, cause)
}

// NewInvalidSeedError reports a seed prompt that fails validation.
func NewInvalidSeedError(name string, reason string) *types.CrucibleError {
	return types.NewError(ErrCodeInvalidSeed, fmt.Sprintf("invalid seed prompt %q: %s", name, reason))
}

// IsTemplateRenderError reports whether err is a template rendering failure.
func IsTemplateRenderError(err error) bool {
	return types.HasCode(err, types.TEMPLATE_RENDER_ERROR)
}
