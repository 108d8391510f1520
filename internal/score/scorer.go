// Package score implements self-ask scorers: a chat target is given a fixed
// rubric as its system prompt and asked for a JSON verdict on each piece.
package score

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Scorer produces verdicts on pieces.
type Scorer interface {
	// Score returns the verdicts for piece. A reply that is not valid JSON or
	// lacks a required key fails with MALFORMED_SCORER_RESPONSE.
	Score(ctx context.Context, piece *memory.Piece) ([]memory.Score, error)

	// Type is the score type this scorer produces.
	Type() memory.ScoreType

	// Identifier describes the scorer as recorded on scores.
	Identifier() types.Identifier
}

// Option configures a scorer.
type Option func(*selfAsk)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *selfAsk) {
		s.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *selfAsk) {
		s.tracer = tracer
	}
}

// WithMeter sets the meter that counts verdicts.
func WithMeter(meter metric.Meter) Option {
	return func(s *selfAsk) {
		s.meter = meter
	}
}

// selfAsk holds what both scorers share: the chat target, the dedicated
// scoring conversation and its sequence counter.
type selfAsk struct {
	name           string
	chat           target.Target
	conversationID string
	renderer       *prompt.Renderer
	logger         *slog.Logger
	tracer         trace.Tracer
	meter          metric.Meter
	verdicts       metric.Int64Counter

	mu       sync.Mutex
	sequence int
}

func newSelfAsk(name string, chat target.Target, opts []Option) *selfAsk {
	s := &selfAsk{
		name:           name,
		chat:           chat,
		conversationID: types.NewID().String(),
		renderer:       prompt.NewRenderer(),
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer("crucible/score"),
		meter:          metricnoop.NewMeterProvider().Meter("crucible/score"),
		sequence:       1,
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := s.meter.Int64Counter("crucible.score.verdicts",
		metric.WithDescription("Number of verdicts produced by scorers"))
	if err != nil {
		s.logger.Warn("failed to create score counter", "error", err)
		counter, _ = metricnoop.NewMeterProvider().Meter("crucible/score").Int64Counter("crucible.score.verdicts")
	}
	s.verdicts = counter
	return s
}

// setSystemPrompt renders the named builtin template and installs it on the
// scoring conversation.
func (s *selfAsk) setSystemPrompt(ctx context.Context, builtin string, params map[string]any, ident types.Identifier) error {
	tmpl, err := prompt.Builtin(builtin)
	if err != nil {
		return err
	}
	text, err := tmpl.Render(s.renderer, params)
	if err != nil {
		return err
	}
	if err := s.chat.SetSystemPrompt(ctx, text, s.conversationID, ident, nil); err != nil {
		return fmt.Errorf("failed to set %s system prompt: %w", s.name, err)
	}
	return nil
}

// ask sends the piece's converted value on the scoring conversation and
// returns the raw reply.
func (s *selfAsk) ask(ctx context.Context, piece *memory.Piece) (string, error) {
	if piece == nil {
		return "", types.NewError(ErrCodeUnscorablePiece, "cannot score a nil piece")
	}
	switch piece.ConvertedValueDataType {
	case types.DataTypeText, types.DataTypeError:
	default:
		return "", types.NewError(types.UNSUPPORTED_INPUT_TYPE,
			fmt.Sprintf("%s cannot score %s content", s.name, piece.ConvertedValueDataType))
	}

	// The scoring conversation is shared, so asks are serialized to keep its
	// history in order.
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.sequence
	s.sequence += 2

	req := memory.NewPiece(memory.RoleUser, s.conversationID, seq, piece.ConvertedValue, types.DataTypeText)
	req.TargetIdentifier = s.chat.Identifier()
	req.Metadata = map[string]string{target.MetadataResponseFormat: "json"}

	resp, err := s.chat.Send(ctx, target.NewRequest(req))
	if err != nil {
		return "", err
	}
	if len(resp.Pieces) == 0 {
		return "", NewMalformedResponseError(s.name, "", fmt.Errorf("scoring target returned no reply"))
	}
	return resp.Text(), nil
}

// run wraps one scoring call in a span and counts the verdict.
func (s *selfAsk) run(ctx context.Context, piece *memory.Piece, category string, fn func(ctx context.Context) (memory.Score, error)) ([]memory.Score, error) {
	ctx, span := s.tracer.Start(ctx, "score."+s.name,
		trace.WithAttributes(attribute.String("category", category)))
	defer span.End()
	if piece != nil {
		span.SetAttributes(attribute.String("piece_id", piece.ID.String()))
	}

	sc, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scorer", s.name),
		attribute.String("category", category),
		attribute.String("value", sc.Value),
	))
	s.logger.Debug("scored piece",
		"scorer", s.name,
		"piece_id", piece.ID,
		"category", category,
		"value", sc.Value,
	)
	return []memory.Score{sc}, nil
}

// Succeeded reports whether sc satisfies the success predicate: a
// true_false "True", or a float_scale value at or above threshold. A nil
// score never succeeds.
func Succeeded(sc *memory.Score, threshold float64) bool {
	if sc == nil {
		return false
	}
	switch sc.Type {
	case memory.ScoreTypeTrueFalse:
		ok, err := sc.Bool()
		return err == nil && ok
	case memory.ScoreTypeFloatScale:
		v, err := sc.Float()
		return err == nil && v >= threshold
	default:
		return false
	}
}

// FeedbackParams returns the parameters of the attack feedback template for
// sc, or nil when there is no score.
func FeedbackParams(sc *memory.Score) map[string]any {
	if sc == nil {
		return nil
	}
	return map[string]any{"value": sc.Value, "rationale": sc.Rationale}
}
