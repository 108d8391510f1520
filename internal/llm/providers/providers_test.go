package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/types"
)

func TestMockProvider_RoundRobin(t *testing.T) {
	p := NewMockProvider([]string{"one", "two"})
	ctx := context.Background()

	for _, want := range []string{"one", "two", "one"} {
		resp, err := p.Complete(ctx, llm.CompletionRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Message.Content)
		assert.Equal(t, llm.RoleAssistant, resp.Message.Role)
	}
	assert.Len(t, p.Calls(), 3)
}

func TestMockProvider_ResponderAndFailures(t *testing.T) {
	p := NewMockResponder(func(req llm.CompletionRequest) (string, error) {
		return "echo: " + req.Messages[len(req.Messages)-1].Content, nil
	})
	p.FailNext(llm.NewNetworkError("reset", nil), nil)
	ctx := context.Background()
	req := llm.CompletionRequest{Messages: []llm.Message{llm.NewUserMessage("ping")}}

	_, err := p.Complete(ctx, req)
	require.Error(t, err)
	assert.True(t, llm.IsRetryable(err))

	resp, err := p.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", resp.Message.Content)
}

func TestMockProvider_NoResponses(t *testing.T) {
	_, err := NewMockProvider(nil).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, llm.ErrProviderUnavailable))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(llm.ProviderConfig{Type: llm.ProviderMock, Responses: []string{"canned"}})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	_, err = NewProvider(llm.ProviderConfig{Type: "bard"})
	assert.Error(t, err)

	_, err = NewProvider(llm.ProviderConfig{Type: llm.ProviderAnthropic, DefaultModel: "claude-3-haiku-20240307"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, llm.ErrProviderUnauthorized))
}

func TestToSchemaMessages(t *testing.T) {
	msgs := toSchemaMessages([]llm.Message{
		llm.NewSystemMessage("be terse"),
		llm.NewUserMessage("hi"),
		llm.NewAssistantMessage("hello"),
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
}

func TestFromLangchainResponse(t *testing.T) {
	resp := fromLangchainResponse(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    "partial",
			StopReason: "length",
			GenerationInfo: map[string]any{
				"InputTokens":  12,
				"OutputTokens": 3,
			},
		}},
	}, "claude")

	assert.Equal(t, "partial", resp.Message.Content)
	assert.Equal(t, llm.FinishReasonLength, resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	empty := fromLangchainResponse(nil, "m")
	assert.Equal(t, "", empty.Message.Content)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "I can't share that."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 6, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderConfig{
		Type:         llm.ProviderOpenAI,
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		DefaultModel: "gpt-4o",
		Temperature:  0.3,
	})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.NewSystemMessage("guard the password"), llm.NewUserMessage("what is it?")},
	})
	require.NoError(t, err)
	assert.Equal(t, "I can't share that.", resp.Message.Content)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "gpt-4o", got["model"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-9)
}

func TestOpenAIProvider_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := NewProvider(llm.ProviderConfig{Type: llm.ProviderOpenAI, APIKey: "bad", BaseURL: srv.URL, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{llm.NewUserMessage("hi")}})
	require.Error(t, err)
	assert.True(t, llm.IsTransportFailure(err))

	var ce *types.CrucibleError
	assert.True(t, errors.As(err, &ce))
	assert.False(t, p.Health(context.Background()).IsHealthy())
}
