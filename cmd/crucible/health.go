package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/observability"
	"github.com/zero-day-ai/crucible/internal/types"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database, model providers, embedder and targets",
	Long: `Check every configured component and print its state. The default
attack target is included; chat targets report the health of their
provider. Exits with 3 when any component is unhealthy.`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, appConfig, appOptions{models: true})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if _, err := a.target(a.cfg.Attack.Target); err != nil {
		a.logger.Warn("default target could not be built", "target", a.cfg.Attack.Target, "error", err)
	}

	results := a.health.CheckAll(ctx)
	overall := observability.Overall(results)

	out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		if err := out.PrintJSON(map[string]any{"overall": overall, "components": results}); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, name := range a.health.Names() {
			status := results[name]
			rows = append(rows, []string{name, status.State.String(), status.Message})
		}
		if err := out.PrintTable([]string{"component", "state", "message"}, rows); err != nil {
			return err
		}
		switch overall.State {
		case types.HealthStateHealthy:
			err = out.PrintSuccess(overall.Message)
		case types.HealthStateDegraded:
			err = out.PrintWarning(overall.Message)
		default:
			err = out.PrintError(overall.Message)
		}
		if err != nil {
			return err
		}
	}

	if overall.State == types.HealthStateUnhealthy {
		return internal.ExitWith(internal.ExitError)
	}
	return nil
}
