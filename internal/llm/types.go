package llm

import (
	"fmt"
)

// Role is who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string { return string(r) }

// Message is one chat message exchanged with a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewSystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func NewUserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func NewAssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// JSONMode asks the backend to constrain output to JSON. Replies are
	// still run through ExtractJSON since not every backend honours it.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Validate returns an ErrInvalidRequest error describing the first problem.
// Assistant messages may be empty: a target under attack can reply with
// nothing, and that reply stays in the history.
func (r CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewInvalidRequestError("at least one message is required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser:
			if m.Content == "" {
				return NewInvalidRequestError(fmt.Sprintf("message %d: %s message must have content", i, m.Role))
			}
		case RoleAssistant:
		default:
			return NewInvalidRequestError(fmt.Sprintf("message %d: invalid role %q", i, m.Role))
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return NewInvalidRequestError(fmt.Sprintf("temperature must be between 0 and 2, got %g", r.Temperature))
	}
	if r.MaxTokens < 0 {
		return NewInvalidRequestError(fmt.Sprintf("max_tokens must be non-negative, got %d", r.MaxTokens))
	}
	return nil
}

// FinishReason says why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// CompletionResponse is the assistant reply to a CompletionRequest.
type CompletionResponse struct {
	ID           string               `json:"id"`
	Model        string               `json:"model"`
	Message      Message              `json:"message"`
	FinishReason FinishReason         `json:"finish_reason"`
	Usage        CompletionTokenUsage `json:"usage"`
}

// CompletionTokenUsage is the token accounting reported by the provider.
type CompletionTokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
