//go:build go1.25

package logging

import "log/slog"

func recordSource(r slog.Record) *slog.Source {
	return r.Source()
}
