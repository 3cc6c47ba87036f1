package regenerate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"realign/internal/alignment"
	"realign/internal/artifact"
	"realign/internal/discovery"
	"realign/internal/fileutil"
	"realign/internal/logging"
	"realign/internal/normalize"
	"realign/internal/printer"
)

var (
	// ErrMissingDatasetDir reports a train or test dataset directory that
	// does not exist for a record.
	ErrMissingDatasetDir = errors.New("dataset directory not found")
	// ErrBackupFailed reports an artifact that could not be copied aside.
	ErrBackupFailed = errors.New("artifact backup failed")
)

const (
	trainDirName = "train"
	testDirName  = "test"
)

// Options controls one regeneration run.
type Options struct {
	DatasetRoot string
	// EvalCadence is the held-out cadence used for every support dataset,
	// regardless of the cadence recorded for the artifact.
	EvalCadence int
	Backup      bool
	DryRun      bool
}

// Validate checks options before any record is touched.
func (o Options) Validate() error {
	if o.DatasetRoot == "" {
		return errors.New("dataset root is required")
	}
	return normalize.ValidateCadence(o.EvalCadence)
}

// Status is the result class of one record.
type Status string

const (
	StatusRegenerated Status = "regenerated"
	StatusSimulated   Status = "simulated"
	StatusFailed      Status = "failed"
)

// Outcome is what happened to one record.
type Outcome struct {
	Record discovery.Record
	Status Status
	// Reason is a short failure description; empty on success.
	Reason string
	// BackupPath is set when a backup was written, or would have been under
	// dry run.
	BackupPath string
	Elapsed    time.Duration
	Err        error
}

// Succeeded reports whether the record counts as a success.
func (o Outcome) Succeeded() bool {
	return o.Status != StatusFailed
}

// Summary aggregates one run. It is returned by value; nothing is global.
type Summary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	DryRun    bool
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// Total returns the number of records processed.
func (s Summary) Total() int {
	return s.Succeeded + s.Failed
}

// ExitCode is 1 when any record failed and 0 otherwise.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// Aligner computes an alignment and writes its artifact.
type Aligner interface {
	ComputeAndWrite(ctx context.Context, req alignment.Request, output string) (alignment.Result, string, error)
}

// Orchestrator drives a batch of records through an Aligner.
type Orchestrator struct {
	aligner Aligner
	printer *printer.Printer
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an orchestrator. A nil printer prints nothing and a nil logger
// disables logging.
func New(aligner Aligner, p *printer.Printer, logger *slog.Logger) *Orchestrator {
	if p == nil {
		p = printer.Discard()
	}
	return &Orchestrator{
		aligner: aligner,
		printer: p,
		logger:  logging.NewComponentLogger(logger, "regenerate"),
		now:     time.Now,
	}
}

// DatasetDirs returns the train and test dataset directories of a record.
func DatasetDirs(root string, rec discovery.Record) (train, test string) {
	base := filepath.Join(root, rec.Scene, rec.Modality)
	return filepath.Join(base, trainDirName), filepath.Join(base, testDirName)
}

// Run processes records in order. The run ID is taken from ctx when present.
func (o *Orchestrator) Run(ctx context.Context, records []discovery.Record, opts Options) Summary {
	runID, ok := logging.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	summary := Summary{
		RunID:     runID,
		StartedAt: o.now().UTC(),
		DryRun:    opts.DryRun,
		Outcomes:  make([]Outcome, 0, len(records)),
	}

	for _, rec := range records {
		outcome := o.process(ctx, rec, opts)
		if outcome.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
		o.printer.Blank()
	}

	summary.EndedAt = o.now().UTC()
	logging.WithContext(ctx, o.logger).Info("regeneration finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Bool("dry_run", opts.DryRun),
		logging.Duration("elapsed", summary.EndedAt.Sub(summary.StartedAt)),
	)
	return summary
}

func (o *Orchestrator) process(ctx context.Context, rec discovery.Record, opts Options) Outcome {
	start := o.now()
	logger := logging.WithContext(ctx, o.logger).With(logging.Args(logging.RecordAttrs(rec.Scene, rec.Modality, rec.Variant)...)...)

	o.printer.Step("Processing: %s", rec.Label())
	if rec.CadenceDefaulted {
		o.printer.Detail("test_every: %d (default)", rec.Cadence)
	} else {
		o.printer.Detail("test_every: %d", rec.Cadence)
	}
	o.printer.Detail("alignment: %s", rec.ArtifactPath)

	fail := func(reason string, err error) Outcome {
		o.printer.DetailFailure("%s", reason)
		logger.Warn("record failed",
			logging.String(logging.FieldEventType, "record_failed"),
			logging.String("reason", reason),
			logging.Error(err),
		)
		return Outcome{Record: rec, Status: StatusFailed, Reason: reason, Err: err, Elapsed: o.now().Sub(start)}
	}

	train, test := DatasetDirs(opts.DatasetRoot, rec)
	for _, dir := range []struct{ label, path string }{{"Train", train}, {"Test", test}} {
		if !isDir(dir.path) {
			err := fmt.Errorf("%w: %s", ErrMissingDatasetDir, dir.path)
			return fail(fmt.Sprintf("%s dir not found: %s", dir.label, dir.path), err)
		}
	}

	outcome := Outcome{Record: rec}
	if opts.Backup {
		backup, err := o.backup(rec.ArtifactPath, opts.DryRun)
		if err != nil {
			return fail(fmt.Sprintf("Backup failed: %v", err), err)
		}
		outcome.BackupPath = backup
	}

	o.printer.Detail("Running: --train-dir %s --subset-dir %s --train-test-every %d --eval-test-every %d --output %s",
		train, test, rec.Cadence, opts.EvalCadence, rec.ArtifactPath)

	if opts.DryRun {
		o.printer.Detail("[DRY RUN] Would regenerate alignment")
		outcome.Status = StatusSimulated
		outcome.Elapsed = o.now().Sub(start)
		return outcome
	}

	req := alignment.Request{
		BaseDir:        train,
		SupportDir:     test,
		BaseCadence:    rec.Cadence,
		SupportCadence: opts.EvalCadence,
	}
	if _, _, err := o.aligner.ComputeAndWrite(ctx, req, rec.ArtifactPath); err != nil {
		return fail(fmt.Sprintf("Failed: %v", err), err)
	}

	o.printer.DetailSuccess("Regenerated successfully")
	outcome.Status = StatusRegenerated
	outcome.Elapsed = o.now().Sub(start)
	logger.Info("record regenerated",
		logging.String(logging.FieldEventType, "record_regenerated"),
		logging.Int(logging.FieldCadence, rec.Cadence),
		logging.Duration("elapsed", outcome.Elapsed),
	)
	return outcome
}

// backup copies the artifact to its .old sibling. A missing artifact is not
// an error; there is simply nothing to preserve.
func (o *Orchestrator) backup(artifactPath string, dryRun bool) (string, error) {
	info, err := os.Stat(artifactPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrBackupFailed, artifactPath)
	}

	dst := artifact.BackupPath(artifactPath)
	if dryRun {
		o.printer.Detail("[DRY RUN] Would back up to %s", filepath.Base(dst))
		return dst, nil
	}
	if err := fileutil.CopyFileVerified(artifactPath, dst); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}
	o.printer.DetailSuccess("Backed up to %s", filepath.Base(dst))
	return dst, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
