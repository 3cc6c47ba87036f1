// Package alignment combines two independently derived normalization
// transforms into the transform mapping the support frame onto the base
// frame.
package alignment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"realign/internal/artifact"
	"realign/internal/logging"
	"realign/internal/normalize"
	"realign/internal/transform"
)

// Request names the two datasets to align and the cadences each is
// normalized with.
type Request struct {
	BaseDir        string
	SupportDir     string
	BaseCadence    int
	SupportCadence int
}

// Result carries the alignment and the normalizations it was built from.
type Result struct {
	Align   transform.Transform
	Base    transform.Transform
	Support transform.Transform
}

// Artifact converts the result to its persisted single-precision form.
func (r Result) Artifact() artifact.Artifact {
	return artifact.New(r.Align, r.Base, r.Support)
}

// Computer derives alignment transforms through a normalization provider.
type Computer struct {
	provider normalize.Provider
	logger   *slog.Logger
}

// NewComputer constructs a Computer. A nil logger disables logging.
func NewComputer(provider normalize.Provider, logger *slog.Logger) *Computer {
	return &Computer{provider: provider, logger: logging.NewComponentLogger(logger, "alignment")}
}

// Compose returns base · support⁻¹, the transform taking support-normalized
// coordinates into base-normalized coordinates.
func Compose(base, support transform.Transform) (transform.Transform, error) {
	inv, err := support.Inverse()
	if err != nil {
		return transform.Transform{}, fmt.Errorf("invert support normalization: %w", err)
	}
	return base.Mul(inv), nil
}

// Compute normalizes both datasets independently and composes them.
func (c *Computer) Compute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	base, err := c.provider.Normalize(ctx, req.BaseDir, req.BaseCadence)
	if err != nil {
		return Result{}, fmt.Errorf("normalize base %s: %w", req.BaseDir, err)
	}
	support, err := c.provider.Normalize(ctx, req.SupportDir, req.SupportCadence)
	if err != nil {
		return Result{}, fmt.Errorf("normalize support %s: %w", req.SupportDir, err)
	}
	align, err := Compose(base, support)
	if err != nil {
		return Result{}, err
	}

	logging.WithContext(ctx, c.logger).Debug("alignment computed",
		logging.String(logging.FieldEventType, "alignment_computed"),
		logging.String("base_dir", req.BaseDir),
		logging.String("support_dir", req.SupportDir),
		logging.Int("base_test_every", req.BaseCadence),
		logging.Int("support_test_every", req.SupportCadence),
		logging.Duration("elapsed", time.Since(start)),
	)
	return Result{Align: align, Base: base, Support: support}, nil
}

// ComputeAndWrite computes the alignment and persists it at output. Nothing
// is written when the computation fails. The returned path is absolute.
func (c *Computer) ComputeAndWrite(ctx context.Context, req Request, output string) (Result, string, error) {
	abs, err := filepath.Abs(output)
	if err != nil {
		return Result{}, "", fmt.Errorf("resolve output path: %w", err)
	}
	result, err := c.Compute(ctx, req)
	if err != nil {
		return Result{}, "", err
	}
	if err := artifact.Write(abs, result.Artifact()); err != nil {
		return Result{}, "", err
	}
	logging.WithContext(ctx, c.logger).Info("alignment written",
		logging.String(logging.FieldEventType, "alignment_written"),
		logging.String("artifact_path", abs),
	)
	return result, abs, nil
}
