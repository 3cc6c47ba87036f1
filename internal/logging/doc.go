// Package logging assembles the structured slog loggers used across realign.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (scene, modality, variant,
// run_id, event_type) so every component tags its lines the same way. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Logs are diagnostics and go to stderr (plus an optional file); human
// progress output is the printer package's job.
package logging
