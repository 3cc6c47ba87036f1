package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"realign/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded regeneration runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			p := newPrinter(cmd)
			if runID != "" {
				run, err := store.GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				p.Info("Run:         %s", run.ID)
				p.Info("Started:     %s", run.StartedAt.Local().Format(time.DateTime))
				p.Info("Duration:    %s", formatElapsed(run.EndedAt.Sub(run.StartedAt)))
				p.Info("Results dir: %s", run.ResultsDir)
				p.Info("Dataset dir: %s", run.DatasetDir)
				p.Info("Eval cadence: %d", run.EvalCadence)
				p.Info("Succeeded:   %d", run.Succeeded)
				p.Info("Failed:      %d", run.Failed)
				p.Blank()

				rows := make([][]string, 0, len(run.Outcomes))
				for _, o := range run.Outcomes {
					detail := o.Reason
					if detail == "" && o.BackupPath != "" {
						detail = "backup: " + o.BackupPath
					}
					rows = append(rows, []string{o.Label(), strconv.Itoa(o.Cadence), o.Status, formatElapsed(o.Elapsed), detail})
				}
				p.Info("%s", renderTable(
					[]string{"Record", "test_every", "Status", "Elapsed", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				p.Info("No runs recorded in %s", store.Path())
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					run.StartedAt.Local().Format(time.DateTime),
					formatElapsed(run.EndedAt.Sub(run.StartedAt)),
					strconv.Itoa(run.Succeeded),
					strconv.Itoa(run.Failed),
					strconv.Itoa(run.EvalCadence),
					run.DatasetDir,
				})
			}
			p.Info("%s", renderTable(
				[]string{"Run", "Started", "Duration", "OK", "Failed", "Eval", "Dataset dir"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to list (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the outcomes of one run (ID or unique prefix)")
	return cmd
}
