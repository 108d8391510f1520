package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/types"
)

// MockCall represents a recorded call to the mock provider
type MockCall struct {
	Request llm.CompletionRequest
}

// Responder computes a reply from the request. Returning an error makes the
// call fail with it.
type Responder func(req llm.CompletionRequest) (string, error)

// MockProvider implements LLMProvider for tests and dry runs. Replies come
// from the responder when one is set, otherwise from the canned responses in
// round-robin order.
type MockProvider struct {
	mu            sync.Mutex
	responses     []string
	responseIndex int
	responder     Responder
	errs          []error
	calls         []MockCall
	health        types.HealthStatus
}

// NewMockProvider creates a new mock provider
func NewMockProvider(responses []string) *MockProvider {
	return &MockProvider{
		responses: responses,
		calls:     make([]MockCall, 0),
		health:    types.Healthy("mock"),
	}
}

// NewMockResponder creates a mock provider whose replies are computed by fn.
func NewMockResponder(fn Responder) *MockProvider {
	p := NewMockProvider(nil)
	p.responder = fn
	return p
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Complete returns the next scripted reply
func (p *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, llm.TranslateError("mock", err)
	}

	p.mu.Lock()
	p.calls = append(p.calls, MockCall{Request: req})

	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	var response string
	switch {
	case p.responder != nil:
		fn := p.responder
		p.mu.Unlock()
		var err error
		if response, err = fn(req); err != nil {
			return nil, err
		}
	case len(p.responses) == 0:
		p.mu.Unlock()
		return nil, llm.NewProviderUnavailableError("mock", fmt.Errorf("no responses configured"))
	default:
		response = p.responses[p.responseIndex%len(p.responses)]
		p.responseIndex++
		p.mu.Unlock()
	}

	return &llm.CompletionResponse{
		ID:           uuid.New().String(),
		Model:        req.Model,
		Message:      llm.NewAssistantMessage(response),
		FinishReason: llm.FinishReasonStop,
		Usage: llm.CompletionTokenUsage{
			PromptTokens:     10,
			CompletionTokens: len(response) / 4,
			TotalTokens:      10 + len(response)/4,
		},
	}, nil
}

// Health returns the configured health status
func (p *MockProvider) Health(ctx context.Context) types.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

// Calls returns all recorded calls
func (p *MockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()

	calls := make([]MockCall, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// FailNext queues errors returned by the next calls, in order. A nil entry
// lets that call through.
func (p *MockProvider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, errs...)
}

// SetResponses replaces all responses
func (p *MockProvider) SetResponses(responses []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.responses = responses
	p.responseIndex = 0
}

// SetHealthStatus configures what Health returns
func (p *MockProvider) SetHealthStatus(status types.HealthStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = status
}
