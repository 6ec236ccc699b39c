package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiopipe/internal/journal"
)

var errJournalDisabled = errors.New("stage journal is disabled (journal.enabled = false)")

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		step       string
		outputDir  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent stage cache decisions and recorded manifests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), journal.Filter{Step: step, OutputDir: outputDir, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No stage history recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					humanize.Time(e.RecordedAt),
					stepLabel(e.Step),
					string(e.Event),
					valueOrDash(e.Reason),
					e.OutputDir,
					elapsedLabel(e.Elapsed),
					valueOrDash(e.Detail),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Step", "Event", "Reason", "Output", "Elapsed", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				shouldColorize(out),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Only show this stage")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Only show this output directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultLimit, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output history as JSON")

	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stage history older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than-days") {
				days = cfg.Journal.RetentionDays
			}
			if days < 0 {
				return fmt.Errorf("--older-than-days must not be negative, got %d", days)
			}
			j, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			cutoff := time.Now().AddDate(0, 0, -days)
			removed, err := j.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d %s older than %d days\n", removed, pluralize(removed, "entry", "entries"), days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 0, "Age cutoff in days (default journal.retention_days)")
	return cmd
}

func elapsedLabel(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func pluralize(n int64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
