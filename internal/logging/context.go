package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names what happened, for filtering JSON logs.
	FieldEventType = "event_type"
	// FieldScene is the results-tree scene directory name.
	FieldScene = "scene"
	// FieldModality is the capture modality (e.g. iphone).
	FieldModality = "modality"
	// FieldVariant is the experiment variant directory name.
	FieldVariant = "variant"
	// FieldCadence is the held-out cadence a dataset was normalized with.
	FieldCadence = "test_every"
	// FieldRunID identifies one regeneration run.
	FieldRunID = "run_id"
)

type runIDKey struct{}

// WithRunID stores the regeneration run identifier in ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := RunIDFromContext(ctx); ok {
		return logger.With(String(FieldRunID, id))
	}
	return logger
}
