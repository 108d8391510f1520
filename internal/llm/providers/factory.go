package providers

import (
	"github.com/zero-day-ai/crucible/internal/llm"
)

// NewProvider builds the provider for cfg. The mock type replies with
// cfg.Responses in turn, or a fixed line when none are configured.
func NewProvider(cfg llm.ProviderConfig) (llm.LLMProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Type == llm.ProviderMock {
		responses := cfg.Responses
		if len(responses) == 0 {
			responses = []string{"Mock response"}
		}
		return NewMockProvider(responses), nil
	}
	return newLangchainProvider(cfg)
}
