// Package transform implements the prompt transformation pipeline: content
// transformers applied in order, including an interactive human review gate.
package transform

import (
	"context"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Result is the output of a single transformer.
type Result struct {
	Output   string
	DataType types.DataType
}

// Transformer rewrites content of the data types it supports.
type Transformer interface {
	// Name returns the transformer name for logging and identifiers.
	Name() string

	// Identifier describes the transformer as recorded on pieces.
	Identifier() types.Identifier

	// Supports reports whether Apply accepts content of type dt.
	Supports(dt types.DataType) bool

	// Apply transforms content. Callers check Supports first; Apply still
	// rejects unsupported input with UNSUPPORTED_INPUT_TYPE.
	Apply(ctx context.Context, content string, dt types.DataType) (Result, error)
}

// textTransformer is embedded by transformers that only handle text.
type textTransformer struct {
	name string
}

func (t textTransformer) Name() string { return t.name }

func (t textTransformer) Identifier() types.Identifier {
	return types.NewIdentifier(t.name, "")
}

func (t textTransformer) Supports(dt types.DataType) bool {
	return dt == types.DataTypeText
}

func (t textTransformer) check(dt types.DataType) error {
	if !t.Supports(dt) {
		return NewUnsupportedInputError(t.name, dt)
	}
	return nil
}

func textResult(s string) Result {
	return Result{Output: s, DataType: types.DataTypeText}
}
