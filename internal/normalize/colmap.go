package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"realign/internal/colmap"
	"realign/internal/logging"
	"realign/internal/transform"
)

// ColmapProvider normalizes datasets in-process from their sparse COLMAP model.
type ColmapProvider struct {
	logger *slog.Logger
}

// NewColmapProvider constructs the in-process provider.
func NewColmapProvider(logger *slog.Logger) *ColmapProvider {
	return &ColmapProvider{logger: logging.NewComponentLogger(logger, "normalize")}
}

// Normalize loads the dataset's model and derives its normalization transform.
func (p *ColmapProvider) Normalize(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error) {
	if err := ValidateCadence(cadence); err != nil {
		return transform.Transform{}, err
	}
	if err := ctx.Err(); err != nil {
		return transform.Transform{}, err
	}
	if err := requireDir(datasetDir); err != nil {
		return transform.Transform{}, err
	}

	model, err := colmap.Load(datasetDir)
	if err != nil {
		if errors.Is(err, colmap.ErrModelNotFound) {
			return transform.Transform{}, fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
		}
		return transform.Transform{}, fmt.Errorf("%w: %v", ErrMalformedPoses, err)
	}

	result, err := FromModel(model, cadence)
	if err != nil {
		return transform.Transform{}, err
	}
	p.logger.Debug("dataset normalized",
		logging.String(logging.FieldEventType, "normalize_complete"),
		logging.String("dataset_dir", datasetDir),
		logging.Int("test_every", cadence),
		logging.Int("images", len(model.Images)),
		logging.Int("retained", len(RetainedIndices(len(model.Images), cadence))),
		logging.Int("points", len(model.Points)),
	)
	return result, nil
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrDatasetNotFound, dir)
		}
		return fmt.Errorf("%w: %v", ErrDatasetNotFound, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDatasetNotFound, dir)
	}
	return nil
}
