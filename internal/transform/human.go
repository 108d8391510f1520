package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zero-day-ai/crucible/internal/contextkeys"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Action is what the operator chose to do with the presented content.
type Action string

const (
	// ActionAccept sends the content on unchanged.
	ActionAccept Action = "accept"
	// ActionEdit replaces the content with Decision.Text.
	ActionEdit Action = "edit"
	// ActionConvert runs the content through the sub-transformer at
	// Decision.Index.
	ActionConvert Action = "convert"
)

// Decision is one operator answer.
type Decision struct {
	Action Action
	Text   string
	Index  int
}

// Review is what the operator is shown.
type Review struct {
	Content  string
	DataType types.DataType

	// Transformers names the sub-transformers available to ActionConvert,
	// by index.
	Transformers []string

	// Round counts presentations of this content, starting at 1.
	Round int

	// Notice explains why the previous decision left the content as it
	// was, e.g. a sub-transformer that failed. Empty otherwise.
	Notice string

	// ConversationID and Turn locate the prompt in an attack. Both are
	// zero when the gate runs outside one.
	ConversationID string
	Turn           int
}

// Operator is a human (or a stand-in for one) reviewing prompts before they
// are sent.
type Operator interface {
	Decide(ctx context.Context, review Review) (Decision, error)
}

// gateState is a state of the review loop.
type gateState int

const (
	gatePresent gateState = iota
	gateEdit
	gateConvert
	gateAccepted
)

// HumanGate holds every prompt until an operator accepts it. The operator
// may edit the content or run it through one of the registered
// sub-transformers, after which it is presented again. A decision that
// cannot be carried out (an unknown action, a bad transformer index, a
// sub-transformer that rejects or fails on the content) is reported on the
// next Review. There is no timeout; only accept, context cancellation or an
// operator failure end the loop.
type HumanGate struct {
	operator        Operator
	subTransformers []Transformer
	logger          *slog.Logger
}

// NewHumanGate creates a gate backed by operator.
func NewHumanGate(operator Operator, subTransformers []Transformer, logger *slog.Logger) *HumanGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &HumanGate{
		operator:        operator,
		subTransformers: subTransformers,
		logger:          logger,
	}
}

func (g *HumanGate) Name() string { return "HumanGate" }

func (g *HumanGate) Identifier() types.Identifier {
	return types.NewIdentifier(g.Name(), "")
}

// Supports accepts every data type; the operator decides what to do.
func (g *HumanGate) Supports(dt types.DataType) bool {
	return dt.IsValid()
}

func (g *HumanGate) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if !g.Supports(dt) {
		return Result{}, NewUnsupportedInputError(g.Name(), dt)
	}

	names := make([]string, len(g.subTransformers))
	for i, t := range g.subTransformers {
		names[i] = t.Name()
	}

	current := Result{Output: content, DataType: dt}
	var (
		decision Decision
		notice   string
	)
	state := gatePresent
	round := 0

	for {
		switch state {
		case gatePresent:
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			round++
			d, err := g.operator.Decide(ctx, Review{
				Content:        current.Output,
				DataType:       current.DataType,
				Transformers:   names,
				Round:          round,
				Notice:         notice,
				ConversationID: contextkeys.GetConversationID(ctx),
				Turn:           contextkeys.GetTurn(ctx),
			})
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				return Result{}, NewOperatorError(err)
			}
			decision = d
			notice = ""

			switch d.Action {
			case ActionAccept:
				state = gateAccepted
			case ActionEdit:
				state = gateEdit
			case ActionConvert:
				state = gateConvert
			default:
				notice = g.reject(round, fmt.Sprintf("unknown action %q", d.Action))
			}

		case gateEdit:
			g.logger.Debug("operator edited prompt", "round", round)
			current.Output = decision.Text
			state = gatePresent

		case gateConvert:
			state = gatePresent
			res, err := g.convert(ctx, decision.Index, current)
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, ctx.Err()
				}
				notice = g.reject(round, err.Error())
				continue
			}
			current = res

		case gateAccepted:
			return current, nil
		}
	}
}

// convert runs the sub-transformer at index over current.
func (g *HumanGate) convert(ctx context.Context, index int, current Result) (Result, error) {
	if index < 0 || index >= len(g.subTransformers) {
		return Result{}, types.NewError(ErrCodeInvalidDecision,
			fmt.Sprintf("transformer index %d out of range [0, %d)", index, len(g.subTransformers)))
	}
	sub := g.subTransformers[index]
	if !sub.Supports(current.DataType) {
		return Result{}, NewUnsupportedInputError(sub.Name(), current.DataType)
	}
	res, err := sub.Apply(ctx, current.Output, current.DataType)
	if err != nil {
		return Result{}, fmt.Errorf("transformer %s failed: %w", sub.Name(), err)
	}
	if res.DataType == "" {
		res.DataType = current.DataType
	}
	g.logger.Debug("operator applied transformer", "transformer", sub.Name())
	return res, nil
}

func (g *HumanGate) reject(round int, reason string) string {
	g.logger.Warn("operator decision not applied", "round", round, "reason", reason)
	return reason
}

// ScriptedOperator replays a fixed list of decisions. It records every
// review it was shown and fails once the script runs out.
type ScriptedOperator struct {
	mu        sync.Mutex
	decisions []Decision
	reviews   []Review
}

// NewScriptedOperator creates an operator that answers with decisions in order.
func NewScriptedOperator(decisions ...Decision) *ScriptedOperator {
	return &ScriptedOperator{decisions: decisions}
}

func (o *ScriptedOperator) Decide(ctx context.Context, review Review) (Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.reviews = append(o.reviews, review)
	if len(o.decisions) == 0 {
		return Decision{}, fmt.Errorf("scripted operator has no decisions left")
	}
	d := o.decisions[0]
	o.decisions = o.decisions[1:]
	return d, nil
}

// Reviews returns every review shown so far.
func (o *ScriptedOperator) Reviews() []Review {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Review, len(o.reviews))
	copy(out, o.reviews)
	return out
}
