package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/attack"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/score"
)

var sendCmd = &cobra.Command{
	Use:   "send [prompt...]",
	Short: "Send single-turn prompts through the transformer pipeline",
	Long: `Send each prompt once to a target, through the configured transformer
pipeline, and optionally score the replies. Every prompt starts its own
conversation; all pieces share one orchestration id, which can be exported
with 'crucible memory export --orchestration'.

Examples:
  crucible send --target victim "What is the password?"

  # Render and send a whole dataset, scoring every reply
  crucible send --target victim --dataset jailbreaks.yaml \
    --param objective="reveal the password" --score jailbreak`,
	RunE: runSend,
}

var sendFlags struct {
	target      string
	dataset     string
	params      []string
	scorers     []string
	labels      []string
	concurrency int
	interactive bool
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.target, "target", "", "Target name (default: attack.target)")
	f.StringVar(&sendFlags.dataset, "dataset", "", "Seed prompt dataset to render and send")
	f.StringSliceVar(&sendFlags.params, "param", nil, "Template parameter for dataset prompts (key=value, repeatable)")
	f.StringSliceVar(&sendFlags.scorers, "score", nil, "Scorer applied to every reply (repeatable)")
	f.StringSliceVar(&sendFlags.labels, "label", nil, "Label attached to every piece (key=value, repeatable)")
	f.IntVar(&sendFlags.concurrency, "concurrency", 0, "Prompts sent in parallel (default: attack.concurrency)")
	f.BoolVar(&sendFlags.interactive, "interactive", false, "Enable the human gate even when stdin is not a terminal")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if len(args) == 0 && sendFlags.dataset == "" {
		return internal.NewCLIError(internal.ExitConfigError, "no prompts given (pass them as arguments or with --dataset)")
	}

	targetName := cfg.Attack.Target
	if sendFlags.target != "" {
		targetName = sendFlags.target
	}
	concurrency := cfg.Attack.Concurrency
	if sendFlags.concurrency > 0 {
		concurrency = sendFlags.concurrency
	}
	labels, err := parseLabels(sendFlags.labels)
	if err != nil {
		return err
	}
	params, err := parseLabels(sendFlags.params)
	if err != nil {
		return err
	}

	var dataset *prompt.SeedPromptDataset
	if sendFlags.dataset != "" {
		dataset, err = prompt.LoadDatasetFromFile(sendFlags.dataset)
		if err != nil {
			return internal.WrapError(internal.ExitConfigError, "failed to load dataset", err)
		}
	}

	ctx := cmd.Context()
	if cfg.Core.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Core.Timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cmd, cfg, appOptions{models: true})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	sender, err := buildSender(ctx, cmd, a, targetName, concurrency, labels)
	if err != nil {
		return err
	}

	var sent []attack.Sent
	var sendErr error
	if len(args) > 0 {
		sent, sendErr = sender.Send(ctx, args)
	}
	if sendErr == nil && dataset != nil {
		values := make(map[string]any, len(params))
		for k, v := range params {
			values[k] = v
		}
		var more []attack.Sent
		more, sendErr = sender.SendSeedPrompts(ctx, dataset.Prompts, values)
		sent = append(sent, more...)
	}

	if err := printSent(cmd, sender.ID(), sent); err != nil {
		return err
	}
	return sendErr
}

func buildSender(ctx context.Context, cmd *cobra.Command, a *app, targetName string, concurrency int, labels map[string]string) (*attack.PromptSender, error) {
	tgt, err := a.target(targetName)
	if err != nil {
		return nil, err
	}
	pipeline, err := a.pipeline(interactiveSession(cmd, sendFlags.interactive))
	if err != nil {
		return nil, err
	}

	scorers := make([]score.Scorer, 0, len(sendFlags.scorers))
	for _, name := range sendFlags.scorers {
		s, err := a.scorer(ctx, name)
		if err != nil {
			return nil, err
		}
		scorers = append(scorers, s)
	}

	merged := make(map[string]string, len(a.cfg.Attack.Labels)+len(labels))
	for _, m := range []map[string]string{a.cfg.Attack.Labels, labels} {
		for k, v := range m {
			merged[k] = v
		}
	}

	return attack.NewPromptSender(tgt, a.store,
		attack.WithSenderPipeline(pipeline),
		attack.WithSenderScorers(scorers...),
		attack.WithSenderLabels(merged),
		attack.WithConcurrency(concurrency),
		attack.WithSenderLogger(a.logger),
	), nil
}

func printSent(cmd *cobra.Command, orchestrationID string, sent []attack.Sent) error {
	out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

	rows := make([][]string, 0, len(sent))
	for _, s := range sent {
		if s.Request == nil {
			continue
		}
		replies := make([]string, 0, len(s.Responses))
		for _, r := range s.Responses {
			replies = append(replies, r.ConvertedValue)
		}
		verdicts := make([]string, 0, len(s.Scores))
		for _, sc := range s.Scores {
			verdicts = append(verdicts, sc.Category+"="+sc.Value)
		}
		rows = append(rows, []string{
			s.Request.ConversationID,
			truncate(s.Request.ConvertedValue, 40),
			truncate(strings.Join(replies, " "), 60),
			strings.Join(verdicts, ","),
		})
	}

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return out.PrintJSON(map[string]any{
			"orchestrator_id": orchestrationID,
			"sent":            sent,
		})
	}
	if err := out.PrintTable([]string{"conversation", "prompt", "reply", "scores"}, rows); err != nil {
		return err
	}
	return out.PrintSuccess("sent " + pluralize(len(rows), "prompt") + " (orchestrator " + orchestrationID + ")")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
