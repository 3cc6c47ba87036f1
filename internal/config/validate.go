package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRegenerate(); err != nil {
		return err
	}
	if err := c.validateNormalizer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRegenerate() error {
	if c.Regenerate.EvalTestEvery < 1 {
		return fmt.Errorf("regenerate.eval_test_every must be >= 1, got %d", c.Regenerate.EvalTestEvery)
	}
	if len(c.Regenerate.Modalities) == 0 {
		return errors.New("regenerate.modalities must list at least one modality")
	}
	for _, modality := range c.Regenerate.Modalities {
		if strings.ContainsAny(modality, `/\`) {
			return fmt.Errorf("regenerate.modalities: %q must be a single directory name", modality)
		}
	}
	return nil
}

func (c *Config) validateNormalizer() error {
	switch c.Normalizer.Backend {
	case BackendColmap:
	case BackendCommand:
		if c.Normalizer.Command == "" {
			return errors.New("normalizer.command must be set when normalizer.backend is \"command\"")
		}
	default:
		return fmt.Errorf("normalizer.backend: unsupported value %q (want %q or %q)", c.Normalizer.Backend, BackendColmap, BackendCommand)
	}
	if c.Normalizer.TimeoutSeconds < 0 {
		return errors.New("normalizer.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// RequireDatasetDir reports a clear error when no dataset root is configured.
func (c *Config) RequireDatasetDir() error {
	if strings.TrimSpace(c.Paths.DatasetDir) == "" {
		return fmt.Errorf("dataset directory is required: pass --dataset-dir, set paths.dataset_dir, or export %s", envDatasetDir)
	}
	return nil
}
