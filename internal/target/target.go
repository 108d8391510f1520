// Package target implements the endpoints attacks are delivered to: chat
// models, plain HTTP endpoints, the Gandalf challenge and a text sink.
package target

import (
	"context"

	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Request is one turn sent to a target. All pieces share a conversation id
// and sequence number.
type Request struct {
	Pieces []*memory.Piece
}

// NewRequest wraps pieces in a Request.
func NewRequest(pieces ...*memory.Piece) Request {
	return Request{Pieces: pieces}
}

// Validate checks the request has pieces from a single conversation turn.
func (r Request) Validate() error {
	if len(r.Pieces) == 0 {
		return newInvalidRequestError("no pieces")
	}
	first := r.Pieces[0]
	for _, p := range r.Pieces {
		if p == nil {
			return newInvalidRequestError("nil piece")
		}
		if p.ConversationID != first.ConversationID {
			return newInvalidRequestError("pieces span several conversations")
		}
		if p.Sequence != first.Sequence {
			return newInvalidRequestError("pieces span several sequence numbers")
		}
	}
	return nil
}

// Last returns the final piece of the request.
func (r Request) Last() *memory.Piece {
	if len(r.Pieces) == 0 {
		return nil
	}
	return r.Pieces[len(r.Pieces)-1]
}

// Response is what a target returned for one request. It may be empty for
// targets that never reply.
type Response struct {
	Pieces []*memory.Piece
}

// Text returns the converted value of the first response piece.
func (r Response) Text() string {
	if len(r.Pieces) == 0 {
		return ""
	}
	return r.Pieces[0].ConvertedValue
}

// Target receives prompts and returns replies.
//
// Implementations must be safe for concurrent use across conversations.
type Target interface {
	// Send delivers req and returns the reply pieces. Transport and
	// credential failures are reported as TARGET_UNAVAILABLE.
	Send(ctx context.Context, req Request) (Response, error)

	// SetSystemPrompt sets the system prompt of a conversation. It must be
	// called before the first Send on that conversation.
	SetSystemPrompt(ctx context.Context, prompt, conversationID string, orchestrator types.Identifier, labels map[string]string) error

	// Identifier describes the target as recorded on pieces.
	Identifier() types.Identifier

	// Close releases clients and connections.
	Close() error
}

// NewResponsePiece builds the assistant piece answering req: same
// conversation, the following sequence number, labels and orchestrator
// copied over.
func NewResponsePiece(req *memory.Piece, target types.Identifier, value string, dt types.DataType) *memory.Piece {
	p := memory.NewPiece(memory.RoleAssistant, req.ConversationID, req.Sequence+1, value, dt)
	p.TargetIdentifier = target
	p.OrchestratorIdentifier = req.OrchestratorIdentifier
	if len(req.Labels) > 0 {
		p.Labels = make(map[string]string, len(req.Labels))
		for k, v := range req.Labels {
			p.Labels[k] = v
		}
	}
	return p
}

// NewErrorResponsePiece builds a response piece recording that the target
// did not produce a normal reply.
func NewErrorResponsePiece(req *memory.Piece, target types.Identifier, message string, marker memory.ResponseError) *memory.Piece {
	p := NewResponsePiece(req, target, message, types.DataTypeError)
	p.ResponseError = marker
	return p
}

// NewSystemPiece builds the piece recording a conversation's system prompt.
func NewSystemPiece(prompt, conversationID string, target, orchestrator types.Identifier, labels map[string]string) *memory.Piece {
	p := memory.NewPiece(memory.RoleSystem, conversationID, 0, prompt, types.DataTypeText)
	p.TargetIdentifier = target
	p.OrchestratorIdentifier = orchestrator
	p.Labels = labels
	return p
}
