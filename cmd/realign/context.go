package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"realign/internal/config"
	"realign/internal/logging"
	"realign/internal/normalize"
	"realign/internal/preflight"
	"realign/internal/printer"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewFromConfig(c.configValue(), c.verbose())
	})
	return c.logger, c.loggerErr
}

// provider builds the configured normalization backend, memoized so a
// dataset shared by several records is only normalized once per cadence.
func (c *commandContext) provider(logger *slog.Logger) (*normalize.CachedProvider, error) {
	cfg := c.configValue()
	switch cfg.Normalizer.Backend {
	case config.BackendCommand:
		inner, err := normalize.NewCommandProvider(
			cfg.Normalizer.Command,
			cfg.Normalizer.Args,
			cfg.Normalizer.TimeoutSeconds,
			normalize.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return normalize.Cached(inner), nil
	default:
		return normalize.Cached(normalize.NewColmapProvider(logger)), nil
	}
}

// checkNormalizer fails with a formatted report when the configured external
// normalizer is not installed.
func checkNormalizer(p *printer.Printer, cfg *config.Config) error {
	result := preflight.CheckNormalizer(cfg)
	if result.Passed {
		return nil
	}
	return p.Error(
		fmt.Sprintf("Normalizer command unavailable: %s", result.Detail),
		"normalizer.backend is \"command\" but the configured program cannot be found on PATH.",
		[]string{
			"Install the program or fix normalizer.command in the config file",
			fmt.Sprintf("Set normalizer.backend = %q to normalize in-process", config.BackendColmap),
		},
	)
}

func newPrinter(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
