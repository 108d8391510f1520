package target

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/zero-day-ai/crucible/internal/types"
)

// TextTarget writes every prompt to a writer and never replies. It is used
// for dry runs and for collecting generated prompts.
type TextTarget struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextTarget creates a text target writing to w.
func NewTextTarget(w io.Writer) *TextTarget {
	return &TextTarget{w: w}
}

func (t *TextTarget) Identifier() types.Identifier {
	return types.NewIdentifier("TextTarget", "")
}

func (t *TextTarget) SetSystemPrompt(ctx context.Context, prompt, conversationID string, orchestrator types.Identifier, labels map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "[%s] system: %s\n", conversationID, prompt)
	return err
}

// Send writes the request pieces and returns an empty response.
func (t *TextTarget) Send(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range req.Pieces {
		if _, err := fmt.Fprintf(t.w, "[%s#%d] %s: %s\n", p.ConversationID, p.Sequence, p.Role, p.ConvertedValue); err != nil {
			return Response{}, NewUnavailableError("text", err)
		}
	}
	return Response{}, nil
}

// Close does nothing; the writer belongs to the caller.
func (t *TextTarget) Close() error {
	return nil
}
