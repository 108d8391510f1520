package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and export the conversation memory",
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a conversation or an orchestration as JSON",
	Long: `Export every piece of a conversation, with its scores, or every piece
written by one orchestration (an attack or send invocation).

Examples:
  crucible memory export --conversation 3f0c...
  crucible memory export --orchestration 9ab2... --file run.json`,
	RunE: runMemoryExport,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored pieces",
	Long: `List stored pieces by conversation and sequence. Every filter that is set
must match.

Examples:
  crucible memory list --label op=red --since 24h
  crucible memory list --orchestration 9ab2... --limit 20`,
	RunE: runMemoryList,
}

var memoryFlags struct {
	conversation  string
	orchestration string
	file          string
	labels        []string
	since         time.Duration
	limit         int
}

func init() {
	ef := memoryExportCmd.Flags()
	ef.StringVar(&memoryFlags.conversation, "conversation", "", "Conversation id to export")
	ef.StringVar(&memoryFlags.orchestration, "orchestration", "", "Orchestration id to export")
	ef.StringVar(&memoryFlags.file, "file", "", "Write to this file instead of stdout")
	memoryExportCmd.MarkFlagsMutuallyExclusive("conversation", "orchestration")
	memoryExportCmd.MarkFlagsOneRequired("conversation", "orchestration")

	lf := memoryListCmd.Flags()
	lf.StringVar(&memoryFlags.conversation, "conversation", "", "Only pieces of this conversation")
	lf.StringVar(&memoryFlags.orchestration, "orchestration", "", "Only pieces of this orchestration")
	lf.StringSliceVar(&memoryFlags.labels, "label", nil, "Only pieces carrying this label (key=value, repeatable)")
	lf.DurationVar(&memoryFlags.since, "since", 0, "Only pieces newer than this (e.g. 24h)")
	lf.IntVar(&memoryFlags.limit, "limit", 50, "Maximum number of pieces")

	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryListCmd)
}

func openMemory(ctx context.Context, cmd *cobra.Command) (*app, error) {
	return newApp(ctx, cmd, appConfig, appOptions{})
}

func runMemoryExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openMemory(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	w := cmd.OutOrStdout()
	if memoryFlags.file != "" {
		f, err := os.Create(memoryFlags.file)
		if err != nil {
			return internal.WrapError(internal.ExitError, "failed to create export file", err)
		}
		defer f.Close()
		w = f
	}

	if memoryFlags.conversation != "" {
		err = a.store.ExportConversation(ctx, memoryFlags.conversation, w)
	} else {
		err = a.store.ExportOrchestration(ctx, memoryFlags.orchestration, w)
	}
	if err != nil {
		return err
	}
	if memoryFlags.file != "" {
		return internal.NewTextFormatter(cmd.ErrOrStderr()).PrintSuccess("exported to " + memoryFlags.file)
	}
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	labels, err := parseLabels(memoryFlags.labels)
	if err != nil {
		return err
	}
	filter := memory.PieceFilter{
		ConversationID: memoryFlags.conversation,
		OrchestratorID: memoryFlags.orchestration,
		Labels:         labels,
		Limit:          memoryFlags.limit,
	}
	if memoryFlags.since > 0 {
		filter.Since = time.Now().Add(-memoryFlags.since)
	}

	ctx := cmd.Context()
	a, err := openMemory(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	pieces, err := a.store.QueryPieces(ctx, filter)
	if err != nil {
		return err
	}

	out := internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
	if globalFlags.GetOutputFormat() == internal.FormatJSON {
		return out.PrintJSON(pieces)
	}

	rows := make([][]string, 0, len(pieces))
	for _, p := range pieces {
		rows = append(rows, []string{
			p.Timestamp.Format(time.DateTime),
			p.ConversationID,
			strconv.Itoa(p.Sequence),
			string(p.Role),
			truncate(p.ConvertedValue, 60),
		})
	}
	return out.PrintTable([]string{"time", "conversation", "seq", "role", "value"}, rows)
}
