package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/relay/internal/journal"
	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd lists recent turns from the journal.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent turns from the journal",
	Long: `List the most recent turns recorded in the journal, newest first.

Examples:
  # Last 20 turns
  relay history

  # Machine-readable output
  relay history --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of turns to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print turns as JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(ctx, cfg.Journal.Path, logging.NewNop())
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer store.Close()

	turns, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(turns)
	}

	if len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No turns recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tSESSION\tITER\tCONTEXT\tFILES\tQUESTION")
	for _, t := range turns {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
			t.ID,
			t.CreatedAt.Local().Format(time.DateTime),
			shortID(t.SessionID),
			t.Iterations,
			contextSummary(t.Fields),
			len(t.Files),
			truncate(t.Question, 60),
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func contextSummary(f orchestrator.ContextFields) string {
	var parts []string
	for _, key := range []orchestrator.FieldKey{orchestrator.FieldTaskID, orchestrator.FieldUseCase} {
		if v, ok := f.Get(key); ok {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "/")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
