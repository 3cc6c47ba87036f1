// Package normalize derives the per-dataset normalization transform that
// maps a reconstruction's raw camera frame into its canonical frame.
//
// Two providers implement the same contract. ColmapProvider reads the sparse
// model in-process and reproduces the training pipeline's normalization
// (camera similarity, principal-axis alignment, upside-down correction).
// CommandProvider shells out to an external normalizer for setups that must
// stay bit-compatible with another toolchain. Cached wraps either one so a
// dataset shared by many alignments is only normalized once per run.
//
// Each dataset is normalized only from the poses it retains under its own
// held-out cadence; two datasets never share pose statistics.
package normalize
