package config

const (
	defaultConfigPath     = "~/.config/realign/config.toml"
	projectConfigName     = "realign.toml"
	defaultResultsDir     = "results"
	defaultStateDir       = "~/.local/share/realign"
	defaultModality       = "iphone"
	defaultEvalTestEvery  = 1
	defaultBackend        = BackendColmap
	defaultCommandTimeout = 600
	defaultLogFormat      = "console"
	defaultLogLevel       = "warn"

	// BackendColmap normalizes datasets in-process from their COLMAP model.
	BackendColmap = "colmap"
	// BackendCommand delegates normalization to an external program.
	BackendCommand = "command"

	envDatasetDir = "REALIGN_DATASET_DIR"
	envResultsDir = "REALIGN_RESULTS_DIR"
)

// Default returns a Config populated with repository defaults. The results
// directory is left empty so normalize can apply the environment fallback
// before the relative default.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Regenerate: Regenerate{
			Modalities:    []string{defaultModality},
			EvalTestEvery: defaultEvalTestEvery,
			Backup:        true,
		},
		Normalizer: Normalizer{
			Backend:        defaultBackend,
			TimeoutSeconds: defaultCommandTimeout,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
