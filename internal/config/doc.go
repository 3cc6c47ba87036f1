// Package config loads, normalizes, and validates realign configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the REALIGN_DATASET_DIR and REALIGN_RESULTS_DIR
// environment fallbacks. Command-line flags override whatever this package
// resolves; the CLI applies them after Load.
package config
