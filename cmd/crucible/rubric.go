package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/prompt"
	"github.com/zero-day-ai/crucible/internal/score"
)

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "List and show the builtin scoring rubrics",
}

var rubricListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List builtin rubrics and prompt templates",
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())

		var rows [][]string
		for _, kind := range []string{"true_false", "likert"} {
			for _, name := range score.BuiltinRubricNames(kind) {
				rows = append(rows, []string{"rubric", kind, name})
			}
		}
		for _, name := range prompt.BuiltinNames() {
			rows = append(rows, []string{"template", "prompt", name})
		}
		return out.PrintTable([]string{"kind", "type", "name"}, rows)
	},
}

var rubricShowCmd = &cobra.Command{
	Use:         "show <true_false|likert> <name>",
	Short:       "Print a builtin rubric as YAML",
	Annotations: noConfig,
	Args:        cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rubric any
		var err error
		switch args[0] {
		case "true_false":
			rubric, err = score.BuiltinTrueFalseRubric(args[1])
		case "likert", "float_scale":
			rubric, err = score.BuiltinLikertRubric(args[1])
		default:
			return internal.NewCLIError(internal.ExitConfigError, fmt.Sprintf("unknown rubric type %q", args[0]))
		}
		if err != nil {
			return err
		}

		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			return internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(rubric)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(rubric); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rubricCmd.AddCommand(rubricListCmd)
	rubricCmd.AddCommand(rubricShowCmd)
}
