package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/grumpy/internal/cli/output"
	"github.com/leapstack-labs/grumpy/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent evaluation passes",
		Long: `List the most recent evaluation passes recorded in the state database,
newest first.`,
		Example: `  # Last 10 passes
  grumpy history

  # Last 50 passes as JSON
  grumpy history -n 50 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "Number of passes to show")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	store, err := openStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	if store == nil {
		return internal(fmt.Errorf("pass history requires the state database (remove --no-state)"))
	}
	defer func() { _ = store.Close() }()

	passes, err := store.RecentPasses(opts.Limit)
	if err != nil {
		return internal(fmt.Errorf("failed to read pass history: %w", err))
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if passes == nil {
			passes = []*state.Pass{}
		}
		return r.JSON(passes)
	case output.ModeMarkdown:
		r.Header(1, "Pass history")
		r.Println(historyTable(passes).RenderMarkdown())
		return nil
	default:
		if len(passes) == 0 {
			r.Muted("No passes recorded")
			return nil
		}
		t := historyTable(passes)
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	}
}

func historyTable(passes []*state.Pass) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Started", "Mode", "Status", "Files", "Findings", "Errors", "Duration"})
	for _, p := range passes {
		duration := "-"
		if p.CompletedAt != nil {
			duration = p.CompletedAt.Sub(p.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			p.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.Mode, string(p.Status), p.Files, p.Findings, p.Errors, duration,
		})
	}
	return t
}
