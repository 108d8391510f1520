package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/types"
)

// backend builds the langchaingo client for one provider type. keyed
// backends refuse to start without an API key.
type backend struct {
	keyed bool
	build func(cfg llm.ProviderConfig) (llms.Model, error)
}

var backends = map[llm.ProviderType]backend{
	llm.ProviderOpenAI: {keyed: true, build: func(cfg llm.ProviderConfig) (llms.Model, error) {
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.DefaultModel)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	}},
	llm.ProviderAnthropic: {keyed: true, build: func(cfg llm.ProviderConfig) (llms.Model, error) {
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.DefaultModel)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	}},
	llm.ProviderGoogle: {keyed: true, build: func(cfg llm.ProviderConfig) (llms.Model, error) {
		return googleai.New(context.Background(),
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.DefaultModel),
		)
	}},
	// Local uncensored models served by Ollama are a common attacker choice.
	llm.ProviderOllama: {build: func(cfg llm.ProviderConfig) (llms.Model, error) {
		opts := []ollama.Option{ollama.WithServerURL(cfg.GetBaseURL())}
		if cfg.DefaultModel != "" {
			opts = append(opts, ollama.WithModel(cfg.DefaultModel))
		}
		return ollama.New(opts...)
	}},
}

// langchainProvider is an llm.LLMProvider over any langchaingo chat model.
type langchainProvider struct {
	name   string
	client llms.Model
	config llm.ProviderConfig
}

func newLangchainProvider(cfg llm.ProviderConfig) (*langchainProvider, error) {
	name := string(cfg.Type)
	b, ok := backends[cfg.Type]
	if !ok {
		return nil, llm.NewInvalidRequestError(fmt.Sprintf("unknown provider type: %s", cfg.Type))
	}
	if b.keyed && cfg.APIKey == "" {
		return nil, llm.NewAuthError(name, nil)
	}
	client, err := b.build(cfg)
	if err != nil {
		return nil, llm.TranslateError(name, err)
	}
	return &langchainProvider{name: name, client: client, config: cfg}, nil
}

func (p *langchainProvider) Name() string { return p.name }

// Complete fills the model, temperature and token cap from the provider
// config where the request leaves them at zero.
func (p *langchainProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = p.config.DefaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = p.config.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.config.MaxTokens
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := p.client.GenerateContent(ctx, toSchemaMessages(req.Messages), buildCallOptions(req)...)
	if err != nil {
		return nil, llm.TranslateError(p.name, err)
	}
	return fromLangchainResponse(resp, req.Model), nil
}

// Health spends one output token on a probe.
func (p *langchainProvider) Health(ctx context.Context) types.HealthStatus {
	_, err := p.Complete(ctx, llm.NewCompletionRequest(p.config.DefaultModel,
		[]llm.Message{llm.NewUserMessage("ping")}, llm.WithMaxTokens(1)))
	if err != nil {
		return types.Unhealthy(err.Error())
	}
	return types.Healthy(p.name)
}
