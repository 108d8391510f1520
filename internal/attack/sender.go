package attack

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zero-day-ai/crucible/internal/contextkeys"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
	"github.com/zero-day-ai/crucible/internal/types"
)

// SenderOption configures a PromptSender.
type SenderOption func(*PromptSender)

// WithSenderPipeline sets the transformers applied to every prompt.
func WithSenderPipeline(p *transform.Pipeline) SenderOption {
	return func(s *PromptSender) {
		s.pipeline = p
	}
}

// WithSenderScorers scores every reply with each scorer.
func WithSenderScorers(scorers ...score.Scorer) SenderOption {
	return func(s *PromptSender) {
		s.scorers = scorers
	}
}

// WithSenderLabels sets labels copied onto every persisted piece.
func WithSenderLabels(labels map[string]string) SenderOption {
	return func(s *PromptSender) {
		s.labels = labels
	}
}

// WithConcurrency bounds how many prompts are in flight.
func WithConcurrency(n int) SenderOption {
	return func(s *PromptSender) {
		s.concurrency = n
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *PromptSender) {
		s.logger = logger
	}
}

// PromptSender sends single-turn prompts, each in its own conversation.
type PromptSender struct {
	target      target.Target
	store       memory.Store
	pipeline    *transform.Pipeline
	scorers     []score.Scorer
	labels      map[string]string
	concurrency int
	renderer    *prompt.Renderer
	logger      *slog.Logger
	id          string
}

// Sent is the outcome of one prompt.
type Sent struct {
	Request   *memory.Piece
	Responses []*memory.Piece
	Scores    []memory.Score
}

// NewPromptSender creates a sender for tgt that records pieces in store.
func NewPromptSender(tgt target.Target, store memory.Store, opts ...SenderOption) *PromptSender {
	s := &PromptSender{
		target:      tgt,
		store:       store,
		concurrency: 4,
		renderer:    prompt.NewRenderer(),
		logger:      slog.Default(),
		id:          types.NewID().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = transform.NewPipeline(nil, transform.WithLogger(s.logger))
	}
	return s
}

// Identifier describes the sender as recorded on pieces.
func (s *PromptSender) Identifier() types.Identifier {
	return types.NewIdentifier("PromptSendingOrchestrator", s.id)
}

// ID returns the orchestration id shared by every piece the sender writes.
func (s *PromptSender) ID() string {
	return s.id
}

// Send delivers every prompt as text. The first failure cancels the prompts
// not yet sent; prompts already delivered stay persisted.
func (s *PromptSender) Send(ctx context.Context, prompts []string) ([]Sent, error) {
	items := make([]outgoing, len(prompts))
	for i, text := range prompts {
		items[i] = outgoing{text: text, dataType: types.DataTypeText}
	}
	return s.sendAll(ctx, items)
}

// SendSeedPrompts renders each seed prompt with params and sends the
// results. Non-text seeds keep their data type.
func (s *PromptSender) SendSeedPrompts(ctx context.Context, seeds []prompt.SeedPrompt, params map[string]any) ([]Sent, error) {
	items := make([]outgoing, len(seeds))
	for i := range seeds {
		text, err := seeds[i].Render(s.renderer, params)
		if err != nil {
			return nil, err
		}
		dt := seeds[i].DataType
		if dt == "" {
			dt = types.DataTypeText
		}
		items[i] = outgoing{text: text, dataType: dt}
	}
	return s.sendAll(ctx, items)
}

type outgoing struct {
	text     string
	dataType types.DataType
}

func (s *PromptSender) sendAll(ctx context.Context, items []outgoing) ([]Sent, error) {
	results := make([]Sent, len(items))

	g, ctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, item := range items {
		g.Go(func() error {
			sent, err := s.sendOne(ctx, item.text, item.dataType)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			results[i] = sent
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *PromptSender) sendOne(ctx context.Context, text string, dt types.DataType) (Sent, error) {
	conversationID := types.NewID().String()
	ctx = contextkeys.WithConversationID(contextkeys.WithOrchestratorID(ctx, s.id), conversationID)

	out, err := s.pipeline.Run(ctx, text, dt)
	if err != nil {
		return Sent{}, err
	}

	req := memory.NewPiece(memory.RoleUser, conversationID, 0, text, dt)
	req.ConvertedValue = out.Output
	req.ConvertedValueDataType = out.DataType
	req.ComputeHashes()
	req.ConverterIdentifiers = out.Applied
	req.TargetIdentifier = s.target.Identifier()
	req.OrchestratorIdentifier = s.Identifier()
	req.Labels = copyLabels(s.labels)

	resp, err := s.target.Send(ctx, target.NewRequest(req))
	if err != nil {
		return Sent{}, err
	}
	if err := s.store.Insert(ctx, append([]*memory.Piece{req}, resp.Pieces...)...); err != nil {
		return Sent{}, types.WrapError(ErrCodePersistFailed, "failed to persist prompt", err)
	}

	sent := Sent{Request: req, Responses: resp.Pieces}
	if len(resp.Pieces) == 0 {
		return sent, nil
	}
	for _, sc := range s.scorers {
		scores, err := sc.Score(ctx, resp.Pieces[0])
		if err != nil {
			return sent, err
		}
		sent.Scores = append(sent.Scores, scores...)
	}
	if len(sent.Scores) > 0 {
		ptrs := make([]*memory.Score, len(sent.Scores))
		for i := range sent.Scores {
			ptrs[i] = &sent.Scores[i]
		}
		if err := s.store.AddScores(ctx, ptrs...); err != nil {
			return sent, types.WrapError(ErrCodePersistFailed, "failed to persist scores", err)
		}
	}
	s.logger.Debug("prompt sent", "conversation_id", req.ConversationID, "scores", len(sent.Scores))
	return sent, nil
}
