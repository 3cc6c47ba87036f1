package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run     Run
		started string
		ended   string
		dryRun  int
	)
	if err := row.Scan(&run.ID, &started, &ended, &dryRun, &run.ResultsDir, &run.DatasetDir, &run.EvalCadence, &run.Succeeded, &run.Failed); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.EndedAt, err = parseTime(ended); err != nil {
		return nil, err
	}
	run.DryRun = dryRun != 0
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// stripLikeWildcards drops LIKE wildcards from a user-typed prefix.
func stripLikeWildcards(value string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(value)
}
