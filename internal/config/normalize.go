package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRegenerate()
	c.normalizeNormalizer()
	return c.normalizeLogging()
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DatasetDir) == "" {
		if value, ok := os.LookupEnv(envDatasetDir); ok {
			c.Paths.DatasetDir = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		if value, ok := os.LookupEnv(envResultsDir); ok && strings.TrimSpace(value) != "" {
			c.Paths.ResultsDir = strings.TrimSpace(value)
		} else {
			c.Paths.ResultsDir = defaultResultsDir
		}
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.ResultsDir, err = expandPath(strings.TrimSpace(c.Paths.ResultsDir)); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.DatasetDir, err = expandPath(strings.TrimSpace(c.Paths.DatasetDir)); err != nil {
		return fmt.Errorf("paths.dataset_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRegenerate() {
	c.Regenerate.Modalities = NormalizeList(c.Regenerate.Modalities)
	if len(c.Regenerate.Modalities) == 0 {
		c.Regenerate.Modalities = []string{defaultModality}
	}
}

func (c *Config) normalizeNormalizer() {
	c.Normalizer.Backend = strings.ToLower(strings.TrimSpace(c.Normalizer.Backend))
	if c.Normalizer.Backend == "" {
		c.Normalizer.Backend = defaultBackend
	}
	c.Normalizer.Command = strings.TrimSpace(c.Normalizer.Command)
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

// NormalizeList trims entries, drops empty ones and removes duplicates while
// keeping first-seen order. Comma-separated entries are split.
func NormalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
