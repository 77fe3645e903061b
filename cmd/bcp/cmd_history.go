package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/odvcencio/bcp/pkg/history"
	"github.com/odvcencio/bcp/pkg/paths"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		label string
	)
	cmd := &cobra.Command{
		Use:   "history [sweep-id]",
		Short: "List archived sweeps, one sweep's results, or one experiment across sweeps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := history.Open(paths.HistoryPath(a.dataDir, a.cfg.History.Path))
			if err != nil {
				return err
			}
			defer archive.Close()

			ctx := cmd.Context()
			switch {
			case len(args) == 1:
				rows, err := archive.Results(ctx, args[0])
				if err != nil {
					return err
				}
				printRows(a, rows)
			case label != "":
				rows, err := archive.ByLabel(ctx, label)
				if err != nil {
					return err
				}
				printRows(a, rows)
			default:
				sweeps, err := archive.Sweeps(ctx, limit)
				if err != nil {
					return err
				}
				printSweeps(a, sweeps)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sweeps to list")
	cmd.Flags().StringVar(&label, "label", "", "show one experiment (e.g. opt-level=0) across sweeps")
	return cmd
}

func historyTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func printSweeps(a *app, sweeps []history.Sweep) {
	if len(sweeps) == 0 {
		fmt.Fprintln(a.out, "No archived sweeps.")
		return
	}
	t := historyTable("Sweep", "Archived", "Revision", "Cases", "Fastest", "Total")
	for _, s := range sweeps {
		t.Row(s.ID, s.ArchivedAt.Local().Format(time.DateTime), s.Revision, strconv.Itoa(s.Cases), s.BestLabel, seconds(s.BestTotal))
	}
	fmt.Fprintln(a.out, t.Render())
}

func printRows(a *app, rows []history.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No archived results.")
		return
	}
	t := historyTable("Sweep", "Case", "Experiment", "Build", "Run", "Total")
	for _, r := range rows {
		t.Row(r.SweepID, strconv.Itoa(r.Case), r.Label, seconds(r.Build), seconds(r.Run), seconds(r.Total()))
	}
	fmt.Fprintln(a.out, t.Render())
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
