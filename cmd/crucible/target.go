package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/target"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Inspect the configured targets",
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all targets",
	Long: `List the targets of the configuration with their type and endpoint.
The default attack target and attacker are marked.`,
	RunE: runTargetList,
}

func init() {
	targetCmd.AddCommand(targetListCmd)
}

type targetRow struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint,omitempty"`
	Role     string `json:"role,omitempty"`
}

func runTargetList(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	scorerTargets := make(map[string]bool, len(cfg.Scorers))
	for _, sc := range cfg.Scorers {
		scorerTargets[sc.Target] = true
	}

	rows := make([]targetRow, 0, len(names))
	for _, name := range names {
		spec := cfg.Targets[name]
		row := targetRow{Name: name, Type: spec.Type, Endpoint: targetEndpoint(spec)}
		switch {
		case name == cfg.Attack.Target:
			row.Role = "default target"
		case name == cfg.Attack.Attacker:
			row.Role = "attacker"
		case scorerTargets[name]:
			row.Role = "scorer"
		}
		rows = append(rows, row)
	}

	out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return out.PrintJSON(rows)
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{r.Name, r.Type, r.Endpoint, r.Role})
	}
	return out.PrintTable([]string{"name", "type", "endpoint", "role"}, table)
}

func targetEndpoint(spec target.Spec) string {
	switch spec.Type {
	case target.TypeChat:
		if spec.Model != "" {
			return spec.Provider + "/" + spec.Model
		}
		return spec.Provider
	case target.TypeHTTP:
		return spec.HTTP.URL
	case target.TypeGandalf:
		return "gandalf/" + spec.Level
	default:
		return ""
	}
}
