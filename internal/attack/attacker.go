package attack

import (
	"context"
	"fmt"

	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/types"
)

// Keys of the crescendo attacker reply.
const (
	keyGeneratedQuestion   = "generated_question"
	keyLastResponseSummary = "last_response_summary"
	keyRationale           = "rationale_behind_jailbreak"
)

// nextPrompt produces the text of the next attack prompt, either from the
// prompt template or from the attacker model.
func (o *Orchestrator) nextPrompt(ctx context.Context, r *run, turn int, in turnInput) (string, error) {
	if o.attacker == nil {
		return o.template.Render(o.renderer, map[string]any{
			"objective": r.objective,
			"feedback":  in.feedback,
		})
	}

	message, err := prompt.MustBuiltin(prompt.BuiltinAttackerTurn).Render(o.renderer, map[string]any{
		"objective":     r.objective,
		"turn":          turn,
		"max_turns":     r.maxTurns,
		"last_response": in.lastResponse,
		"feedback":      in.feedback,
		"refused_text":  in.refused,
	})
	if err != nil {
		return "", err
	}

	if o.attackerMode == AttackerChat {
		return o.askAttacker(ctx, r, message)
	}

	var question string
	err = o.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		reply, err := o.askAttacker(ctx, r, message)
		if err != nil {
			return err
		}
		obj, err := llm.ParseObject(reply, true, keyGeneratedQuestion, keyLastResponseSummary, keyRationale)
		if err != nil {
			r.logger.Warn("attacker reply was not usable", "attempt", attempt, "error", err)
			return err
		}
		question = llm.StringField(obj, keyGeneratedQuestion)
		if question == "" {
			return llm.NewParseError("attacker returned an empty "+keyGeneratedQuestion, nil)
		}
		r.logger.Debug("attacker rationale", "turn", turn, "rationale", llm.StringField(obj, keyRationale))
		return nil
	})
	if err != nil {
		return "", types.WrapError(ErrCodeAttackerFailed, "attacker did not produce a question", err)
	}
	return question, nil
}

// askAttacker sends message on the attacker conversation, persists the
// exchange and returns the reply text.
func (o *Orchestrator) askAttacker(ctx context.Context, r *run, message string) (string, error) {
	req := memory.NewPiece(memory.RoleUser, r.attackerConversationID, r.attackerSeq, message, types.DataTypeText)
	req.TargetIdentifier = o.attacker.Identifier()
	req.OrchestratorIdentifier = o.Identifier()
	req.Labels = copyLabels(o.labels)
	if o.attackerMode == AttackerCrescendo {
		req.Metadata = map[string]string{target.MetadataResponseFormat: "json"}
	}

	resp, err := o.attacker.Send(ctx, target.NewRequest(req))
	if err != nil {
		return "", types.WrapError(ErrCodeAttackerFailed, "attacker request failed", err)
	}
	r.attackerSeq += 2

	pieces := append([]*memory.Piece{req}, resp.Pieces...)
	if err := o.store.Insert(ctx, pieces...); err != nil {
		return "", types.WrapError(ErrCodePersistFailed, "failed to persist attacker exchange", err)
	}

	if len(resp.Pieces) == 0 {
		return "", types.NewError(ErrCodeAttackerFailed, "attacker returned no reply")
	}
	reply := resp.Pieces[0]
	if reply.HasError() {
		return "", types.NewError(ErrCodeAttackerFailed,
			fmt.Sprintf("attacker reply was marked %s", reply.ResponseError))
	}
	return reply.ConvertedValue, nil
}
