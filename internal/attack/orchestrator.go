// Package attack drives multi-turn attacks: it renders a prompt, runs it
// through the transformation pipeline, sends it to the target, persists the
// turn, scores the reply and decides whether to go on.
package attack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zero-day-ai/crucible/internal/contextkeys"
	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
	"github.com/zero-day-ai/crucible/internal/types"
	"github.com/zero-day-ai/crucible/internal/verbose"
)

// DefaultThreshold is the float_scale success threshold used when none is
// configured. It corresponds to level 4 of a five level scale.
const DefaultThreshold = 0.75

// Orchestrator runs attacks against one target. Independent runs may share
// an Orchestrator concurrently; each run gets its own conversation.
type Orchestrator struct {
	target   target.Target
	scorer   score.Scorer
	store    memory.Store
	pipeline *transform.Pipeline

	attacker     target.Target
	attackerMode AttackerMode
	template     *prompt.SeedPrompt

	refusal       score.Scorer
	maxBacktracks int

	threshold          float64
	retry              llm.RetryPolicy
	labels             map[string]string
	targetSystemPrompt string

	renderer *prompt.Renderer
	id       string
	events   verbose.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	runs         metric.Int64Counter
	turns        metric.Int64Counter
	turnDuration metric.Float64Histogram
}

// NewOrchestrator creates an orchestrator attacking tgt, judging replies
// with scorer and recording every piece in store.
func NewOrchestrator(tgt target.Target, scorer score.Scorer, store memory.Store, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		target:    tgt,
		scorer:    scorer,
		store:     store,
		threshold: DefaultThreshold,
		retry:     llm.DefaultRetryPolicy(),
		renderer:  prompt.NewRenderer(),
		id:        types.NewID().String(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("crucible/attack"),
		meter:     metricnoop.NewMeterProvider().Meter("crucible/attack"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.pipeline == nil {
		o.pipeline = transform.NewPipeline(nil, transform.WithLogger(o.logger), transform.WithTracer(o.tracer))
	}
	if o.template == nil {
		o.template = prompt.MustBuiltin(prompt.BuiltinDirect)
	}
	if o.attacker == nil {
		if err := o.template.CheckParameters(o.renderer, "feedback", "objective"); err != nil {
			return nil, types.WrapError(ErrCodeInvalidOptions, "invalid attack options: prompt template", err)
		}
	}
	o.initMetrics()
	return o, nil
}

func (o *Orchestrator) validate() error {
	switch {
	case o.target == nil:
		return newInvalidOptionsError("target is required")
	case o.scorer == nil:
		return newInvalidOptionsError("scorer is required")
	case o.store == nil:
		return newInvalidOptionsError("memory store is required")
	case o.threshold < 0 || o.threshold > 1:
		return newInvalidOptionsError(fmt.Sprintf("threshold %v outside [0,1]", o.threshold))
	case o.attacker != nil && !o.attackerMode.IsValid():
		return newInvalidOptionsError("unknown attacker mode " + string(o.attackerMode))
	case o.refusal != nil && o.refusal.Type() != memory.ScoreTypeTrueFalse:
		return newInvalidOptionsError("refusal scorer must produce true_false scores")
	case o.maxBacktracks < 0:
		return newInvalidOptionsError("max backtracks must not be negative")
	}
	return nil
}

func (o *Orchestrator) initMetrics() {
	var err error
	fallback := metricnoop.NewMeterProvider().Meter("crucible/attack")

	if o.runs, err = o.meter.Int64Counter("crucible.attack.runs",
		metric.WithDescription("Number of finished attack runs")); err != nil {
		o.logger.Warn("failed to create run counter", "error", err)
		o.runs, _ = fallback.Int64Counter("crucible.attack.runs")
	}
	if o.turns, err = o.meter.Int64Counter("crucible.attack.turns",
		metric.WithDescription("Number of completed attack turns")); err != nil {
		o.logger.Warn("failed to create turn counter", "error", err)
		o.turns, _ = fallback.Int64Counter("crucible.attack.turns")
	}
	if o.turnDuration, err = o.meter.Float64Histogram("crucible.attack.turn.duration",
		metric.WithDescription("Duration of attack turns"), metric.WithUnit("s")); err != nil {
		o.logger.Warn("failed to create turn histogram", "error", err)
		o.turnDuration, _ = fallback.Float64Histogram("crucible.attack.turn.duration")
	}
}

// Identifier describes the orchestrator as recorded on pieces.
func (o *Orchestrator) Identifier() types.Identifier {
	ident := types.NewIdentifier("RedTeamOrchestrator", o.id)
	if o.attacker != nil {
		ident = ident.With("attacker_mode", string(o.attackerMode))
	}
	return ident
}

// ID returns the orchestration id shared by every piece this orchestrator
// writes.
func (o *Orchestrator) ID() string {
	return o.id
}

// run is the state of one call to Run.
type run struct {
	objective string
	maxTurns  int

	conversationID string
	seq            int

	attackerConversationID string
	attackerSeq            int

	state  State
	result *Result
	logger *slog.Logger
}

// enter moves the run to s. A move outside the transition table leaves
// the state as it was and fails the run.
func (r *run) enter(s State) error {
	if !r.state.CanTransition(s) {
		r.logger.Error("illegal attack state transition", "from", r.state, "to", s)
		return types.NewError(ErrCodeIllegalState, fmt.Sprintf("illegal state transition %s -> %s", r.state, s))
	}
	r.logger.Debug("attack state", "from", r.state, "to", s)
	r.state = s
	return nil
}

// turnInput is what the previous turn hands to the next prompt.
type turnInput struct {
	feedback     string
	lastResponse string
	refused      string
}

// Run attacks the target for at most maxTurns turns. It returns a Result
// whenever the arguments were valid; when the run aborts the error is
// returned as well and the turns persisted so far stay in the store.
func (o *Orchestrator) Run(ctx context.Context, objective string, maxTurns int) (*Result, error) {
	if strings.TrimSpace(objective) == "" {
		return nil, newInvalidOptionsError("objective is required")
	}
	if maxTurns < 1 {
		return nil, newInvalidOptionsError(fmt.Sprintf("max turns must be at least 1, got %d", maxTurns))
	}

	start := time.Now()
	r := &run{
		objective:      objective,
		maxTurns:       maxTurns,
		conversationID: types.NewID().String(),
		seq:            1,
		attackerSeq:    1,
		state:          StateInit,
	}
	r.logger = o.logger.With("orchestrator_id", o.id, "conversation_id", r.conversationID)
	r.result = &Result{
		Objective:      objective,
		ConversationID: r.conversationID,
		OrchestratorID: o.id,
	}

	ctx = contextkeys.WithOrchestratorID(ctx, o.id)
	ctx, span := o.tracer.Start(ctx, "attack.run",
		trace.WithAttributes(
			attribute.String("orchestrator_id", o.id),
			attribute.String("conversation_id", r.conversationID),
			attribute.Int("max_turns", maxTurns),
		))
	defer span.End()

	r.logger.Info("starting attack", "max_turns", maxTurns, "attacker", o.attacker != nil)
	o.emit(ctx, r, 0, verbose.EventAttackStarted, &verbose.AttackStartedData{
		Objective: objective,
		MaxTurns:  maxTurns,
		Attacker:  o.attacker != nil,
	})

	err := o.loop(ctx, r)

	res := r.result
	res.Duration = time.Since(start)
	if err != nil {
		_ = r.enter(StateAborted)
		res.Err = err
		res.Status = StatusAborted
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Status = StatusCancelled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("attack aborted", "turns", res.Turns, "error", err)
		o.emit(ctx, r, res.Turns, verbose.EventAttackFailed, &verbose.AttackFailedData{
			Status: string(res.Status),
			Turns:  res.Turns,
			Error:  err.Error(),
		})
	} else {
		r.logger.Info("attack finished", "status", res.Status, "turns", res.Turns, "backtracks", res.Backtracks)
		o.emit(ctx, r, res.Turns, verbose.EventAttackCompleted, &verbose.AttackCompletedData{
			Status:     string(res.Status),
			Turns:      res.Turns,
			Backtracks: res.Backtracks,
			Duration:   res.Duration,
		})
	}
	res.State = r.state
	span.SetAttributes(attribute.String("status", string(res.Status)), attribute.Int("turns", res.Turns))
	o.runs.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("status", string(res.Status))))

	return res, err
}

func (o *Orchestrator) loop(ctx context.Context, r *run) error {
	if err := o.begin(ctx, r); err != nil {
		return newStateError(StateInit, 0, err)
	}

	var in turnInput
	turn := 1
	for {
		started := time.Now()
		response, sent, backtracked, err := o.playTurn(ctx, r, turn, in)
		if err != nil {
			return newStateError(r.state, turn, err)
		}
		if backtracked {
			// The refused turn does not count; the score feedback from the
			// last scored turn still applies to the retry.
			in = turnInput{feedback: in.feedback, refused: sent}
			continue
		}

		r.result.Turns = turn
		o.turns.Add(ctx, 1)
		o.turnDuration.Record(ctx, time.Since(started).Seconds())

		if err := r.enter(StateDecide); err != nil {
			return newStateError(r.state, turn, err)
		}
		if score.Succeeded(r.result.Score, o.threshold) {
			r.result.Status = StatusSucceeded
			return r.enter(StateComplete)
		}
		if turn >= r.maxTurns {
			r.result.Status = StatusExhausted
			return r.enter(StateComplete)
		}

		feedback, err := o.feedback(r.result.Score)
		if err != nil {
			return newStateError(StateDecide, turn, err)
		}
		in = turnInput{feedback: feedback}
		if response != nil {
			in.lastResponse = response.ConvertedValue
		}
		turn++
	}
}

// begin sets the system prompts of the target and attacker conversations.
func (o *Orchestrator) begin(ctx context.Context, r *run) error {
	if o.targetSystemPrompt != "" {
		if err := o.target.SetSystemPrompt(ctx, o.targetSystemPrompt, r.conversationID, o.Identifier(), o.labels); err != nil {
			return err
		}
		sys := target.NewSystemPiece(o.targetSystemPrompt, r.conversationID, o.target.Identifier(), o.Identifier(), copyLabels(o.labels))
		if err := o.store.Insert(ctx, sys); err != nil {
			return types.WrapError(ErrCodePersistFailed, "failed to persist target system prompt", err)
		}
	}

	if o.attacker == nil {
		return nil
	}

	r.attackerConversationID = types.NewID().String()
	r.result.AttackerConversationID = r.attackerConversationID

	name := prompt.BuiltinRedTeamChatbot
	params := map[string]any{"objective": r.objective}
	if o.attackerMode == AttackerCrescendo {
		name = prompt.BuiltinCrescendo
		params["max_turns"] = r.maxTurns
	}
	text, err := prompt.MustBuiltin(name).Render(o.renderer, params)
	if err != nil {
		return err
	}

	if err := o.attacker.SetSystemPrompt(ctx, text, r.attackerConversationID, o.Identifier(), o.labels); err != nil {
		return types.WrapError(ErrCodeAttackerFailed, "failed to set attacker system prompt", err)
	}
	sys := target.NewSystemPiece(text, r.attackerConversationID, o.attacker.Identifier(), o.Identifier(), copyLabels(o.labels))
	if err := o.store.Insert(ctx, sys); err != nil {
		return types.WrapError(ErrCodePersistFailed, "failed to persist attacker system prompt", err)
	}
	return nil
}

// playTurn runs one turn up to scoring. It returns the first response
// piece (nil for targets that never reply), the text the prompt was
// generated as, and whether the turn was backtracked.
func (o *Orchestrator) playTurn(ctx context.Context, r *run, turn int, in turnInput) (*memory.Piece, string, bool, error) {
	ctx = contextkeys.WithTurn(contextkeys.WithConversationID(ctx, r.conversationID), turn)
	ctx, span := o.tracer.Start(ctx, "attack.turn",
		trace.WithAttributes(
			attribute.Int("turn", turn),
			attribute.String("conversation_id", r.conversationID),
		))
	defer span.End()

	fail := func(err error) (*memory.Piece, string, bool, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", false, err
	}

	if err := r.enter(StateRenderPrompt); err != nil {
		return fail(err)
	}
	text, err := o.nextPrompt(ctx, r, turn, in)
	if err != nil {
		return fail(err)
	}

	if err := r.enter(StateTransform); err != nil {
		return fail(err)
	}
	out, err := o.pipeline.Run(ctx, text, types.DataTypeText)
	if err != nil {
		return fail(err)
	}

	applied := make([]string, len(out.Applied))
	for i, ident := range out.Applied {
		applied[i] = ident.Type()
	}
	o.emit(ctx, r, turn, verbose.EventTurnSent, &verbose.TurnSentData{
		Prompt:       text,
		Converted:    out.Output,
		Transformers: applied,
	})

	if err := r.enter(StateAwaitTarget); err != nil {
		return fail(err)
	}
	req := o.requestPiece(r, text, out)
	sendStart := time.Now()
	resp, err := o.target.Send(ctx, target.NewRequest(req))
	if err != nil {
		return fail(err)
	}

	if err := r.enter(StatePersistTurn); err != nil {
		return fail(err)
	}
	pieces := append([]*memory.Piece{req}, resp.Pieces...)
	if err := o.store.Insert(ctx, pieces...); err != nil {
		return fail(types.WrapError(ErrCodePersistFailed, "failed to persist turn", err))
	}
	r.result.LastPrompt = out.Output

	if err := r.enter(StateScore); err != nil {
		return fail(err)
	}
	if len(resp.Pieces) == 0 {
		r.logger.Debug("target did not reply, turn left unscored", "turn", turn)
		r.seq = req.Sequence + 1
		return nil, text, false, nil
	}
	response := resp.Pieces[0]
	r.result.LastResponse = response.ConvertedValue
	o.emit(ctx, r, turn, verbose.EventTurnReplied, &verbose.TurnRepliedData{
		Response: response.ConvertedValue,
		Duration: time.Since(sendStart),
	})

	if o.refusal != nil && r.result.Backtracks < o.maxBacktracks {
		refused, err := o.isRefusal(ctx, response)
		if err != nil {
			return fail(err)
		}
		if refused {
			copyID, err := o.store.DuplicateConversation(ctx, r.conversationID, true)
			if err != nil {
				return fail(types.WrapError(ErrCodePersistFailed, "failed to copy conversation for backtracking", err))
			}
			r.logger.Info("target refused, backtracking", "turn", turn, "new_conversation_id", copyID)
			span.AddEvent("backtrack", trace.WithAttributes(attribute.String("new_conversation_id", copyID)))
			o.emit(ctx, r, turn, verbose.EventTurnBacktracked, &verbose.TurnBacktrackedData{
				Response:          response.ConvertedValue,
				NewConversationID: copyID,
				Backtracks:        r.result.Backtracks + 1,
			})

			r.conversationID = copyID
			r.result.ConversationID = copyID
			r.result.Backtracks++
			r.seq = req.Sequence
			return response, text, true, nil
		}
	}

	scores, err := o.scorer.Score(ctx, response)
	if err != nil {
		return fail(err)
	}
	if err := o.persistScores(ctx, scores); err != nil {
		return fail(err)
	}
	if len(scores) > 0 {
		sc := scores[0]
		r.result.Score = &sc
		span.SetAttributes(attribute.String("score", sc.Value))
		o.emit(ctx, r, turn, verbose.EventTurnScored, &verbose.TurnScoredData{
			Category:  sc.Category,
			Value:     sc.Value,
			Rationale: sc.Rationale,
			Achieved:  score.Succeeded(&sc, o.threshold),
		})
	}
	r.seq = response.Sequence + 1
	return response, text, false, nil
}

// emit publishes to the verbose feed, if one is attached. A full or closed
// feed never fails the run.
func (o *Orchestrator) emit(ctx context.Context, r *run, turn int, eventType verbose.VerboseEventType, payload any) {
	if o.events == nil {
		return
	}
	event := verbose.NewVerboseEvent(eventType, verbose.LevelVerbose, payload)
	event.OrchestratorID = o.id
	event.ConversationID = r.conversationID
	event.Turn = turn
	if err := o.events.Emit(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Debug("verbose event dropped", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) isRefusal(ctx context.Context, response *memory.Piece) (bool, error) {
	scores, err := o.refusal.Score(ctx, response)
	if err != nil {
		return false, err
	}
	if err := o.persistScores(ctx, scores); err != nil {
		return false, err
	}
	for i := range scores {
		if score.Succeeded(&scores[i], 1) {
			return true, nil
		}
	}
	return false, nil
}

func (o *Orchestrator) persistScores(ctx context.Context, scores []memory.Score) error {
	if len(scores) == 0 {
		return nil
	}
	ptrs := make([]*memory.Score, len(scores))
	for i := range scores {
		ptrs[i] = &scores[i]
	}
	if err := o.store.AddScores(ctx, ptrs...); err != nil {
		return types.WrapError(ErrCodePersistFailed, "failed to persist scores", err)
	}
	return nil
}

func (o *Orchestrator) requestPiece(r *run, text string, out transform.Output) *memory.Piece {
	p := memory.NewPiece(memory.RoleUser, r.conversationID, r.seq, text, types.DataTypeText)
	p.ConvertedValue = out.Output
	p.ConvertedValueDataType = out.DataType
	p.ComputeHashes()
	p.ConverterIdentifiers = out.Applied
	p.TargetIdentifier = o.target.Identifier()
	p.OrchestratorIdentifier = o.Identifier()
	p.Labels = copyLabels(o.labels)
	return p
}

// feedback renders the previous score for the next prompt.
func (o *Orchestrator) feedback(sc *memory.Score) (string, error) {
	params := score.FeedbackParams(sc)
	if params == nil {
		return "", nil
	}
	return prompt.MustBuiltin(prompt.BuiltinFeedback).Render(o.renderer, params)
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
