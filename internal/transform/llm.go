package transform

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/types"
)

// modelTransformer holds what the model-backed transformers share: a
// provider, the system prompt rendered once at construction and the retry
// policy for replies that cannot be parsed.
type modelTransformer struct {
	textTransformer
	provider     llm.LLMProvider
	model        string
	systemPrompt string
	retry        llm.RetryPolicy
	logger       *slog.Logger
}

// ModelOption configures a model-backed transformer.
type ModelOption func(*modelTransformer)

// WithModel overrides the provider's default model.
func WithModel(model string) ModelOption {
	return func(m *modelTransformer) {
		m.model = model
	}
}

// WithRetryPolicy sets the retry policy for malformed replies.
func WithRetryPolicy(policy llm.RetryPolicy) ModelOption {
	return func(m *modelTransformer) {
		m.retry = policy
	}
}

// WithModelLogger sets the logger.
func WithModelLogger(logger *slog.Logger) ModelOption {
	return func(m *modelTransformer) {
		m.logger = logger
	}
}

func newModelTransformer(name string, provider llm.LLMProvider, systemPrompt string, opts []ModelOption) modelTransformer {
	m := modelTransformer{
		textTransformer: textTransformer{name: name},
		provider:        provider,
		systemPrompt:    systemPrompt,
		retry:           llm.DefaultRetryPolicy(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m *modelTransformer) Identifier() types.Identifier {
	return m.textTransformer.Identifier().With("provider", m.provider.Name())
}

// complete asks the model to transform content and hands the reply to
// parse, retrying under the policy while parse reports a parse failure.
// Provider errors end the attempt immediately.
func (m *modelTransformer) complete(ctx context.Context, content string, parse func(reply string) (string, error)) (string, error) {
	var out string
	err := m.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		req := llm.NewCompletionRequest(m.model,
			[]llm.Message{llm.NewSystemMessage(m.systemPrompt), llm.NewUserMessage(content)},
			llm.WithJSONMode(),
		)
		resp, err := m.provider.Complete(ctx, req)
		if err != nil {
			return types.WrapError(ErrCodeModelFailed, "model call failed", err)
		}

		out, err = parse(resp.Message.Content)
		if err != nil {
			m.logger.Warn("could not parse transformer reply",
				"transformer", m.name,
				"attempt", attempt,
				"error", err,
			)
			return err
		}
		return nil
	})
	return out, err
}

// VariationTransformer asks a model to rephrase the prompt while keeping
// its meaning. The model replies with a JSON array; the first entry is used.
type VariationTransformer struct {
	modelTransformer
}

// NewVariationTransformer creates a variation transformer.
func NewVariationTransformer(provider llm.LLMProvider, opts ...ModelOption) (*VariationTransformer, error) {
	system, err := prompt.MustBuiltin(prompt.BuiltinVariation).Render(prompt.NewRenderer(), map[string]any{
		"number_iterations": strconv.Itoa(1),
	})
	if err != nil {
		return nil, err
	}
	return &VariationTransformer{newModelTransformer("VariationTransformer", provider, system, opts)}, nil
}

func (t *VariationTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}

	out, err := t.complete(ctx, content, func(reply string) (string, error) {
		variations, err := llm.ExtractJSONAs[[]string](reply)
		if err != nil {
			return "", llm.NewParseError("variation reply is not a JSON array of strings", err)
		}
		if len(variations) == 0 || strings.TrimSpace(variations[0]) == "" {
			return "", llm.NewParseError("variation reply is empty", nil)
		}
		return variations[0], nil
	})
	if err != nil {
		return Result{}, err
	}
	return textResult(out), nil
}

// TranslationTransformer asks a model to translate the prompt into one or
// more languages. With several languages the translations are joined by
// newlines in the configured order.
type TranslationTransformer struct {
	modelTransformer
	languages []string
}

// NewTranslationTransformer creates a translation transformer.
func NewTranslationTransformer(provider llm.LLMProvider, languages []string, opts ...ModelOption) (*TranslationTransformer, error) {
	if len(languages) == 0 {
		return nil, types.NewError(ErrCodeInvalidSpec, "translation needs at least one language")
	}
	for _, lang := range languages {
		if strings.TrimSpace(lang) == "" || strings.Contains(lang, ",") {
			return nil, types.NewError(ErrCodeInvalidSpec, fmt.Sprintf("invalid language %q", lang))
		}
	}

	system, err := prompt.MustBuiltin(prompt.BuiltinTranslation).Render(prompt.NewRenderer(), map[string]any{
		"languages": strings.Join(languages, ", "),
	})
	if err != nil {
		return nil, err
	}
	return &TranslationTransformer{
		modelTransformer: newModelTransformer("TranslationTransformer", provider, system, opts),
		languages:        languages,
	}, nil
}

func (t *TranslationTransformer) Identifier() types.Identifier {
	return t.modelTransformer.Identifier().With("languages", strings.Join(t.languages, ","))
}

func (t *TranslationTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}

	out, err := t.complete(ctx, content, func(reply string) (string, error) {
		doc, err := llm.ExtractJSONAs[translationReply](reply)
		if err != nil {
			return "", llm.NewParseError("translation reply is not a JSON object", err)
		}
		if len(doc.Output) == 0 {
			return "", llm.NewParseError("translation reply has no output", nil)
		}

		translations := make([]string, 0, len(t.languages))
		for _, lang := range t.languages {
			text, ok := lookupFold(doc.Output, lang)
			if !ok {
				return "", llm.NewParseError("translation reply is missing language "+lang, nil)
			}
			translations = append(translations, text)
		}
		return strings.Join(translations, "\n"), nil
	})
	if err != nil {
		return Result{}, err
	}
	return textResult(out), nil
}

type translationReply struct {
	Output map[string]string `json:"output"`
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
