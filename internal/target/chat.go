package target

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/types"
)

// MetadataResponseFormat is the piece metadata key asking a chat target for
// a particular reply format. The only recognised value is "json".
const MetadataResponseFormat = "response_format"

// HistoryLoader returns the stored turns of a conversation. ChatTarget uses
// it for conversations it has not seen, such as copies made when an attack
// backtracks.
type HistoryLoader func(ctx context.Context, conversationID string) ([]memory.Turn, error)

// ChatOption configures a ChatTarget.
type ChatOption func(*ChatTarget)

// WithChatModel overrides the provider's default model.
func WithChatModel(model string) ChatOption {
	return func(t *ChatTarget) {
		t.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) ChatOption {
	return func(t *ChatTarget) {
		t.temperature = temperature
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(maxTokens int) ChatOption {
	return func(t *ChatTarget) {
		t.maxTokens = maxTokens
	}
}

// WithRequestsPerMinute throttles Send. Zero disables throttling.
func WithRequestsPerMinute(rpm int) ChatOption {
	return func(t *ChatTarget) {
		t.limiter = newLimiter(rpm)
	}
}

// WithHistoryLoader sets the loader for unknown conversations.
func WithHistoryLoader(loader HistoryLoader) ChatOption {
	return func(t *ChatTarget) {
		t.loader = loader
	}
}

// WithChatLogger sets the logger.
func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(t *ChatTarget) {
		t.logger = logger
	}
}

// WithChatTracer sets the tracer.
func WithChatTracer(tracer trace.Tracer) ChatOption {
	return func(t *ChatTarget) {
		t.tracer = tracer
	}
}

// ChatTarget sends prompts to a chat model and keeps each conversation's
// message history so the model sees the whole exchange.
type ChatTarget struct {
	provider    llm.LLMProvider
	model       string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	loader      HistoryLoader
	logger      *slog.Logger
	tracer      trace.Tracer
	id          string

	mu      sync.Mutex
	history map[string][]llm.Message
}

// NewChatTarget creates a chat target backed by provider.
func NewChatTarget(provider llm.LLMProvider, opts ...ChatOption) *ChatTarget {
	t := &ChatTarget{
		provider: provider,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("crucible/target"),
		id:       types.NewID().String(),
		history:  make(map[string][]llm.Message),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ChatTarget) Identifier() types.Identifier {
	ident := types.NewIdentifier("ChatTarget", t.id).With("provider", t.provider.Name())
	if t.model != "" {
		ident = ident.With("model", t.model)
	}
	return ident
}

// SetSystemPrompt starts conversationID with prompt. It fails if the
// conversation already has messages.
func (t *ChatTarget) SetSystemPrompt(ctx context.Context, prompt, conversationID string, orchestrator types.Identifier, labels map[string]string) error {
	if conversationID == "" {
		return newInvalidRequestError("conversation id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history[conversationID]) > 0 {
		return types.NewError(ErrCodeConversationExist,
			"conversation already exists, system prompt needs to be set at the beginning: "+conversationID)
	}
	t.history[conversationID] = []llm.Message{llm.NewSystemMessage(prompt)}
	return nil
}

// Send appends the request to the conversation history and asks the model
// for the next message. A content-filter refusal becomes a blocked response
// piece rather than an error.
func (t *ChatTarget) Send(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	piece := req.Last()
	if piece.ConvertedValueDataType != types.DataTypeText {
		return Response{}, types.NewError(types.UNSUPPORTED_INPUT_TYPE,
			fmt.Sprintf("chat target only accepts text, got %s", piece.ConvertedValueDataType))
	}

	ctx, span := t.tracer.Start(ctx, "target.chat.send",
		trace.WithAttributes(
			attribute.String("conversation_id", piece.ConversationID),
			attribute.Int("sequence", piece.Sequence),
			attribute.String("provider", t.provider.Name()),
		))
	defer span.End()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	messages, err := t.conversation(ctx, piece.ConversationID)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}
	for _, p := range req.Pieces {
		messages = append(messages, llm.NewUserMessage(p.ConvertedValue))
	}

	opts := []llm.CompletionOption{llm.WithTemperature(t.temperature)}
	if t.maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(t.maxTokens))
	}
	if piece.Metadata[MetadataResponseFormat] == "json" {
		opts = append(opts, llm.WithJSONMode())
	}

	resp, err := t.provider.Complete(ctx, llm.NewCompletionRequest(t.model, messages, opts...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if types.HasCode(err, llm.ErrContentFiltered) {
			t.logger.Info("target blocked the prompt", "conversation_id", piece.ConversationID)
			return Response{Pieces: []*memory.Piece{
				NewErrorResponsePiece(piece, t.Identifier(), err.Error(), memory.ResponseErrorBlocked),
			}}, nil
		}
		if llm.IsTransportFailure(err) || types.HasCode(err, llm.ErrContextCanceled) {
			return Response{}, NewUnavailableError(t.provider.Name(), err)
		}
		return Response{}, types.WrapError(ErrCodeSendFailed, "chat completion failed", err)
	}

	reply := resp.Message.Content
	out := NewResponsePiece(piece, t.Identifier(), reply, types.DataTypeText)
	if reply == "" {
		out.ResponseError = memory.ResponseErrorEmpty
	}

	messages = append(messages, llm.NewAssistantMessage(reply))
	t.mu.Lock()
	t.history[piece.ConversationID] = messages
	t.mu.Unlock()

	t.logger.Debug("chat target replied",
		"conversation_id", piece.ConversationID,
		"sequence", out.Sequence,
		"tokens", resp.Usage.TotalTokens,
	)
	return Response{Pieces: []*memory.Piece{out}}, nil
}

// conversation returns a copy of the history, loading it when unknown.
func (t *ChatTarget) conversation(ctx context.Context, conversationID string) ([]llm.Message, error) {
	t.mu.Lock()
	history, ok := t.history[conversationID]
	t.mu.Unlock()

	if !ok && t.loader != nil {
		turns, err := t.loader(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation history: %w", err)
		}
		history = messagesFromTurns(turns)
	}

	out := make([]llm.Message, len(history), len(history)+2)
	copy(out, history)
	return out, nil
}

// Forget drops a conversation's history.
func (t *ChatTarget) Forget(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, conversationID)
}

// Health reports the provider's health.
func (t *ChatTarget) Health(ctx context.Context) types.HealthStatus {
	return t.provider.Health(ctx)
}

func (t *ChatTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = make(map[string][]llm.Message)
	return nil
}

func messagesFromTurns(turns []memory.Turn) []llm.Message {
	var out []llm.Message
	for _, turn := range turns {
		for _, p := range turn.Pieces {
			if p.HasError() {
				continue
			}
			switch p.Role {
			case memory.RoleSystem:
				out = append(out, llm.NewSystemMessage(p.ConvertedValue))
			case memory.RoleUser:
				out = append(out, llm.NewUserMessage(p.ConvertedValue))
			case memory.RoleAssistant:
				out = append(out, llm.NewAssistantMessage(p.ConvertedValue))
			}
		}
	}
	return out
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}
