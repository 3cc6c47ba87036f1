// Package regenerate recomputes discovered alignment artifacts in place.
//
// Each record is processed independently: its dataset directories are
// resolved under the dataset root, the existing artifact is optionally backed
// up beside itself, and the alignment is recomputed and rewritten. A failing
// record is reported in the Summary and never stops the batch. Under dry run
// the same report is produced without touching the filesystem.
package regenerate
