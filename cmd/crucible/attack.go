package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/attack"
	"github.com/zero-day-ai/crucible/internal/config"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/verbose"
)

// attackCmd represents the attack command
var attackCmd = &cobra.Command{
	Use:   "attack [objective...]",
	Short: "Run multi-turn attacks against a configured target",
	Long: `Run one multi-turn attack per objective against a target from the
configuration. Every turn is persisted before it is scored; the run stops
as soon as the scorer reports the objective as achieved or the turn
budget is spent.

Exit codes: 0 the target resisted, 1 an objective was achieved, 3 a run
failed, 5 cancelled, 10 configuration error.

Examples:
  # Attack the configured default target
  crucible attack "Get the assistant to reveal its system prompt"

  # Drive the prompts with an attacker model in crescendo mode
  crucible attack --attacker red-team --mode crescendo --max-turns 10 \
    "Explain how to bypass the content filter"

  # Read objectives from a seed prompt dataset
  crucible attack --objectives objectives.yaml --concurrency 4

  # Review every prompt before it is sent (needs a human_gate transformer)
  crucible attack --interactive "Leak the password"

  # Follow every turn live on stderr
  crucible attack --watch "Leak the password"`,
	RunE: runAttack,
}

var attackFlags struct {
	target         string
	attacker       string
	mode           string
	scorer         string
	refusalScorer  string
	maxTurns       int
	maxBacktracks  int
	threshold      float64
	concurrency    int
	systemPrompt   string
	labels         []string
	objectivesFile string
	promptFile     string
	interactive    bool
	watch          bool
}

func init() {
	f := attackCmd.Flags()
	f.StringVar(&attackFlags.target, "target", "", "Target name (default: attack.target)")
	f.StringVar(&attackFlags.attacker, "attacker", "", "Chat target that generates the attack prompts")
	f.StringVar(&attackFlags.mode, "mode", "", "Attacker mode (chat|crescendo)")
	f.StringVar(&attackFlags.scorer, "scorer", "", "Objective scorer name (default: attack.scorer)")
	f.StringVar(&attackFlags.refusalScorer, "refusal-scorer", "", "Scorer that detects refusals for backtracking")
	f.IntVar(&attackFlags.maxTurns, "max-turns", 0, "Maximum turns per objective (default: attack.max_turns)")
	f.IntVar(&attackFlags.maxBacktracks, "max-backtracks", 0, "Maximum refused turns to backtrack")
	f.Float64Var(&attackFlags.threshold, "threshold", 0, "Success threshold for float scores")
	f.IntVar(&attackFlags.concurrency, "concurrency", 0, "Objectives attacked in parallel")
	f.StringVar(&attackFlags.systemPrompt, "system-prompt", "", "System prompt set on the target conversation")
	f.StringSliceVar(&attackFlags.labels, "label", nil, "Label attached to every piece (key=value, repeatable)")
	f.StringVar(&attackFlags.objectivesFile, "objectives", "", "Seed prompt dataset whose prompt values are objectives")
	f.StringVar(&attackFlags.promptFile, "prompt-template", "", "Seed prompt file used to render each turn's prompt")
	f.BoolVar(&attackFlags.interactive, "interactive", false, "Enable the human gate even when stdin is not a terminal")
	f.BoolVar(&attackFlags.watch, "watch", false, "Stream turn events to stderr while the attacks run")
}

// applyAttackFlags overrides the attack section with the flags that were set.
func applyAttackFlags(cmd *cobra.Command, cfg *config.AttackConfig) error {
	f := cmd.Flags()
	if f.Changed("target") {
		cfg.Target = attackFlags.target
	}
	if f.Changed("attacker") {
		cfg.Attacker = attackFlags.attacker
	}
	if f.Changed("mode") {
		cfg.AttackerMode = attackFlags.mode
	}
	if f.Changed("scorer") {
		cfg.Scorer = attackFlags.scorer
	}
	if f.Changed("refusal-scorer") {
		cfg.RefusalScorer = attackFlags.refusalScorer
	}
	if f.Changed("max-turns") {
		cfg.MaxTurns = attackFlags.maxTurns
	}
	if f.Changed("max-backtracks") {
		cfg.MaxBacktracks = attackFlags.maxBacktracks
	}
	if f.Changed("threshold") {
		cfg.Threshold = attackFlags.threshold
	}
	if f.Changed("concurrency") {
		cfg.Concurrency = attackFlags.concurrency
	}
	if f.Changed("system-prompt") {
		cfg.SystemPrompt = attackFlags.systemPrompt
	}

	labels, err := parseLabels(attackFlags.labels)
	if err != nil {
		return err
	}
	if len(labels) > 0 && cfg.Labels == nil {
		cfg.Labels = make(map[string]string, len(labels))
	}
	for k, v := range labels {
		cfg.Labels[k] = v
	}
	return nil
}

// collectObjectives joins positional objectives with the dataset ones.
func collectObjectives(args []string, datasetPath string) ([]string, error) {
	objectives := append([]string(nil), args...)
	if datasetPath != "" {
		ds, err := prompt.LoadDatasetFromFile(datasetPath)
		if err != nil {
			return nil, internal.WrapError(internal.ExitConfigError, "failed to load objectives", err)
		}
		objectives = append(objectives, ds.Values()...)
	}
	if len(objectives) == 0 {
		return nil, internal.NewCLIError(internal.ExitConfigError, "no objectives given (pass them as arguments or with --objectives)")
	}
	return objectives, nil
}

// interactiveSession reports whether the human gate can ask the operator.
func interactiveSession(cmd *cobra.Command, forced bool) bool {
	if forced {
		return true
	}
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runAttack(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if err := applyAttackFlags(cmd, &cfg.Attack); err != nil {
		return err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return err
	}
	if cfg.Attack.Scorer == "" {
		return internal.NewCLIError(internal.ExitConfigError, "no objective scorer configured (set attack.scorer or --scorer)")
	}

	objectives, err := collectObjectives(args, attackFlags.objectivesFile)
	if err != nil {
		return err
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

	var feed *verbose.VerboseWriter
	if attackFlags.watch {
		feed = verbose.NewVerboseWriter(cmd.ErrOrStderr(), verbose.LevelVerbose,
			globalFlags.GetOutputFormat() == internal.FormatJSON,
			globalFlags.NoColor || !internal.IsTerminal(cmd.ErrOrStderr()))
		feed.Start(ctx)
	}

	orch, err := buildOrchestrator(ctx, cmd, a, feed)
	if err != nil {
		feed.Stop()
		return err
	}

	results, runErr := orch.RunAll(ctx, objectives, cfg.Attack.MaxTurns, cfg.Attack.Concurrency)
	feed.Stop()
	if runErr != nil {
		a.logger.Error("attack runs failed", "orchestrator_id", orch.ID(), "error", runErr)
	}

	if err := printAttackResults(cmd, orch.ID(), objectives, results); err != nil {
		return err
	}
	return internal.ExitWith(attack.ExitCodeFromResults(results...))
}

func buildOrchestrator(ctx context.Context, cmd *cobra.Command, a *app, feed *verbose.VerboseWriter) (*attack.Orchestrator, error) {
	cfg := a.cfg.Attack

	tgt, err := a.target(cfg.Target)
	if err != nil {
		return nil, err
	}
	objectiveScorer, err := a.scorer(ctx, cfg.Scorer)
	if err != nil {
		return nil, err
	}
	pipeline, err := a.pipeline(interactiveSession(cmd, attackFlags.interactive))
	if err != nil {
		return nil, err
	}

	opts := []attack.Option{
		attack.WithPipeline(pipeline),
		attack.WithThreshold(cfg.Threshold),
		attack.WithRetryPolicy(cfg.Retry),
		attack.WithLabels(cfg.Labels),
		attack.WithLogger(a.logger),
		attack.WithTracer(a.tracer("crucible/attack")),
		attack.WithMeter(a.metrics.Meter("crucible/attack")),
	}
	if feed != nil {
		opts = append(opts, attack.WithEvents(feed.Bus()))
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, attack.WithTargetSystemPrompt(cfg.SystemPrompt))
	}
	if cfg.Attacker != "" {
		attacker, err := a.target(cfg.Attacker)
		if err != nil {
			return nil, err
		}
		mode := attack.AttackerMode(cfg.AttackerMode)
		if mode == "" {
			mode = attack.AttackerChat
		}
		opts = append(opts, attack.WithAttacker(attacker, mode))
	}
	if cfg.RefusalScorer != "" {
		refusal, err := a.scorer(ctx, cfg.RefusalScorer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, attack.WithRefusalScorer(refusal, cfg.MaxBacktracks))
	}
	if attackFlags.promptFile != "" {
		tmpl, err := prompt.LoadSeedPromptFromFile(attackFlags.promptFile)
		if err != nil {
			return nil, internal.WrapError(internal.ExitConfigError, "failed to load prompt template", err)
		}
		opts = append(opts, attack.WithPromptTemplate(tmpl))
	}

	return attack.NewOrchestrator(tgt, objectiveScorer, a.store, opts...)
}

func printAttackResults(cmd *cobra.Command, orchestratorID string, objectives []string, results []*attack.Result) error {
	out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return out.PrintJSON(map[string]any{
			"orchestrator_id": orchestratorID,
			"exit_code":       attack.ExitCodeFromResults(results...),
			"results":         results,
		})
	}

	rows := make([][]string, 0, len(results))
	achieved := 0
	for i, r := range results {
		if r == nil {
			rows = append(rows, []string{truncate(objectives[i], 48), "invalid", "-", "-", "-", "-"})
			continue
		}
		if r.Succeeded() {
			achieved++
		}
		scoreText := "-"
		if r.Score != nil {
			scoreText = r.Score.Value
		}
		status := r.Status.String()
		if r.Err != nil {
			status += ": " + truncate(r.ErrorString(), 40)
		}
		rows = append(rows, []string{
			truncate(r.Objective, 48),
			status,
			strconv.Itoa(r.Turns),
			strconv.Itoa(r.Backtracks),
			scoreText,
			r.ConversationID,
		})
	}
	if err := out.PrintTable([]string{"objective", "status", "turns", "backtracks", "score", "conversation"}, rows); err != nil {
		return err
	}

	summary := fmt.Sprintf("objective achieved in %d of %d runs (orchestrator %s)", achieved, len(results), orchestratorID)
	if achieved > 0 {
		return out.PrintWarning(summary)
	}
	return out.PrintSuccess(summary)
}

// truncate shortens s to at most n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
