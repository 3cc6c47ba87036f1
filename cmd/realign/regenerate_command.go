package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"realign/internal/alignment"
	"realign/internal/config"
	"realign/internal/discovery"
	"realign/internal/history"
	"realign/internal/logging"
	"realign/internal/preflight"
	"realign/internal/printer"
	"realign/internal/regenerate"
)

var errRecordsFailed = errors.New("alignment regeneration failed")

type regenerateFlags struct {
	resultsDir    string
	datasetDir    string
	modalities    []string
	evalTestEvery int
	scenes        []string
	noBackup      bool
	dryRun        bool
}

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	var flags regenerateFlags

	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Recompute every alignment artifact found under the results directory",
		Long: `Scan <results-dir>/<scene>/<modality>/<variant>/alignments/test_to_train.npz,
read test_every from each variant's cfg.yml (default 8), and recompute the
artifact from <dataset-dir>/<scene>/<modality>/{train,test}. Existing artifacts
are copied to test_to_train.npz.old first unless --no-backup is given.

The command exits non-zero when any record fails; the remaining records are
still processed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenerate(cmd, ctx, flags)
		},
	}

	cmd.Flags().StringVar(&flags.resultsDir, "results-dir", "", "Results directory (default: paths.results_dir)")
	cmd.Flags().StringVar(&flags.datasetDir, "dataset-dir", "", "Dataset directory (default: paths.dataset_dir)")
	cmd.Flags().StringSliceVar(&flags.modalities, "modalities", nil, "Modalities to regenerate (default: regenerate.modalities)")
	cmd.Flags().IntVar(&flags.evalTestEvery, "eval-test-every", 0, "Cadence for the eval dataset normalization (default: regenerate.eval_test_every)")
	cmd.Flags().StringSliceVar(&flags.scenes, "scenes", nil, "Specific scenes to regenerate (default: all)")
	cmd.Flags().BoolVar(&flags.noBackup, "no-backup", false, "Don't back up old alignment files")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be done without doing it")
	return cmd
}

func runRegenerate(cmd *cobra.Command, ctx *commandContext, flags regenerateFlags) error {
	cfg := ctx.configValue()
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	p := newPrinter(cmd)

	resultsDir, err := pathOverride(flags.resultsDir, cfg.Paths.ResultsDir)
	if err != nil {
		return err
	}
	datasetDir, err := pathOverride(flags.datasetDir, cfg.Paths.DatasetDir)
	if err != nil {
		return err
	}
	if datasetDir == "" {
		return p.Error(
			"Dataset directory is not configured",
			"regenerate needs the root holding <scene>/<modality>/{train,test} datasets.",
			[]string{
				"Pass --dataset-dir",
				"Set paths.dataset_dir in the config file",
				"Export REALIGN_DATASET_DIR",
			},
		)
	}

	modalities := cfg.Regenerate.Modalities
	if cmd.Flags().Changed("modalities") {
		modalities = config.NormalizeList(flags.modalities)
	}
	if len(modalities) == 0 {
		return errors.New("at least one modality is required")
	}
	opts := regenerate.Options{
		DatasetRoot: datasetDir,
		EvalCadence: cfg.Regenerate.EvalTestEvery,
		Backup:      cfg.Regenerate.Backup && !flags.noBackup,
		DryRun:      flags.dryRun,
	}
	if cmd.Flags().Changed("eval-test-every") {
		opts.EvalCadence = flags.evalTestEvery
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := runPreflight(p, cfg, preflight.Plan{
		ResultsDir: resultsDir,
		DatasetDir: datasetDir,
		Write:      !opts.DryRun,
	}); err != nil {
		return err
	}

	if !opts.DryRun {
		lock := flock.New(cfg.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire regenerate lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another regeneration is already running (lock %s)", cfg.LockPath())
		}
		defer func() {
			_ = lock.Unlock()
		}()
	}

	p.Banner("Regenerating Alignment Transforms")
	p.Blank()
	p.Info("Results dir: %s", resultsDir)
	p.Info("Dataset dir: %s", datasetDir)
	p.Info("Modalities: %s", strings.Join(modalities, ", "))
	p.Info("Dry run: %s", strconv.FormatBool(opts.DryRun))
	p.Blank()

	p.Info("Scanning for existing alignments...")
	found, err := discovery.Discover(resultsDir, modalities, discovery.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, w := range found.Warnings {
		p.Warning("%s", w.String())
	}
	records := discovery.FilterScenes(found.Records, config.NormalizeList(flags.scenes))
	if len(records) == 0 {
		p.Info("No alignments found!")
		return nil
	}
	p.Info("Found %d alignments to regenerate", len(records))
	p.Blank()

	provider, err := ctx.provider(logger)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	runCtx := logging.WithRunID(cmd.Context(), runID)
	orchestrator := regenerate.New(alignment.NewComputer(provider, logger), p, logger)
	summary := orchestrator.Run(runCtx, records, opts)

	printRunSummary(p, summary)
	if !opts.DryRun && cfg.History.Enabled {
		recordHistory(runCtx, p, logger, cfg, history.FromSummary(summary, resultsDir, datasetDir, opts.EvalCadence))
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d records failed", errRecordsFailed, summary.Failed, summary.Total())
	}
	return nil
}

func printRunSummary(p *printer.Printer, summary regenerate.Summary) {
	p.Banner("Summary")
	p.Success("Successful: %d", summary.Succeeded)
	p.Failure("Failed: %d", summary.Failed)
	p.Blank()

	rows := make([][]string, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		rows = append(rows, []string{
			o.Record.Label(),
			strconv.Itoa(o.Record.Cadence),
			string(o.Status),
			formatElapsed(o.Elapsed),
			o.Reason,
		})
	}
	p.Info("%s", renderTable(
		[]string{"Record", "test_every", "Status", "Elapsed", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	))
	p.Blank()

	switch {
	case summary.DryRun:
		p.Info("This was a DRY RUN. Run without --dry-run to actually regenerate.")
	case summary.Succeeded > 0:
		p.Info("Next steps:")
		p.Detail("1. Re-run external eval jobs to get corrected metrics")
		p.Detail("2. Check that PSNR on the regenerated modalities improves")
	}
}

// runPreflight reports every failing check and stops before any record is
// touched.
func runPreflight(p *printer.Printer, cfg *config.Config, plan preflight.Plan) error {
	failed := preflight.Failed(preflight.RunAll(cfg, plan))
	if len(failed) == 0 {
		return nil
	}
	lines := make([]string, 0, len(failed))
	for _, r := range failed {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return p.Error(
		fmt.Sprintf("Preflight failed: %s", lines[0]),
		strings.Join(lines, "\n"),
		[]string{
			"Check the paths passed on the command line or set in the config file",
			"Run realign config validate to see the resolved configuration",
		},
	)
}

// recordHistory stores a finished run. A history failure is reported but
// never changes the run's exit status.
func recordHistory(ctx context.Context, p *printer.Printer, logger *slog.Logger, cfg *config.Config, run history.Run) {
	store, err := history.Open(cfg.HistoryPath())
	if err == nil {
		defer store.Close()
		err = store.RecordRun(ctx, run)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "run history not recorded", "history_write_failed",
			logging.String("history_path", cfg.HistoryPath()),
			logging.Error(err),
		)
		p.Warning("Run history not recorded: %v", err)
		return
	}
	p.Info("Run %s recorded in %s", shortID(run.ID), cfg.HistoryPath())
}

// pathOverride expands a flag value, falling back to the configured path.
func pathOverride(flagValue, configured string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		return configured, nil
	}
	return config.ExpandPath(strings.TrimSpace(flagValue))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}
