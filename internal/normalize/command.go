package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"realign/internal/logging"
	"realign/internal/transform"
)

const (
	// PlaceholderDataDir is replaced by the dataset directory in command args.
	PlaceholderDataDir = "{data_dir}"
	// PlaceholderCadence is replaced by the held-out cadence in command args.
	PlaceholderCadence = "{test_every}"

	maxStderrBytes = 4096
)

// DefaultCommandArgs is used when no argument template is configured.
var DefaultCommandArgs = []string{"--data-dir", PlaceholderDataDir, "--test-every", PlaceholderCadence}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)
}

// CommandOption configures a CommandProvider.
type CommandOption func(*CommandProvider)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) CommandOption {
	return func(p *CommandProvider) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) CommandOption {
	return func(p *CommandProvider) {
		p.logger = logging.NewComponentLogger(logger, "normalize")
	}
}

// CommandProvider delegates normalization to an external program that prints
// the 4×4 transform on stdout.
type CommandProvider struct {
	binary  string
	args    []string
	timeout time.Duration
	exec    Executor
	logger  *slog.Logger
}

// NewCommandProvider constructs a provider for binary. Args may reference
// PlaceholderDataDir and PlaceholderCadence; empty args use DefaultCommandArgs.
func NewCommandProvider(binary string, args []string, timeoutSeconds int, opts ...CommandOption) (*CommandProvider, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("normalizer command required")
	}
	if len(args) == 0 {
		args = DefaultCommandArgs
	}
	p := &CommandProvider{
		binary:  binary,
		args:    append([]string(nil), args...),
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Binary returns the configured executable.
func (p *CommandProvider) Binary() string {
	return p.binary
}

// Args expands the argument template for one invocation.
func (p *CommandProvider) Args(datasetDir string, cadence int) []string {
	out := make([]string, len(p.args))
	for i, arg := range p.args {
		arg = strings.ReplaceAll(arg, PlaceholderDataDir, datasetDir)
		out[i] = strings.ReplaceAll(arg, PlaceholderCadence, strconv.Itoa(cadence))
	}
	return out
}

// Normalize runs the external normalizer and parses its output.
func (p *CommandProvider) Normalize(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error) {
	if err := ValidateCadence(cadence); err != nil {
		return transform.Transform{}, err
	}
	if err := requireDir(datasetDir); err != nil {
		return transform.Transform{}, err
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	args := p.Args(datasetDir, cadence)
	start := time.Now()
	stdout, stderr, err := p.exec.Run(runCtx, p.binary, args)
	if err != nil {
		detail := tail(stderr, maxStderrBytes)
		p.logger.Debug("normalizer command failed",
			logging.String(logging.FieldEventType, "normalize_command_failed"),
			logging.String("binary", p.binary),
			logging.String("dataset_dir", datasetDir),
			logging.Error(err),
		)
		if detail != "" {
			return transform.Transform{}, fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, p.binary, err, detail)
		}
		return transform.Transform{}, fmt.Errorf("%w: %s: %v", ErrCommandFailed, p.binary, err)
	}

	result, err := transform.Parse(string(stdout))
	if err != nil {
		return transform.Transform{}, fmt.Errorf("%w: %s output: %v", ErrMalformedPoses, p.binary, err)
	}
	p.logger.Debug("dataset normalized",
		logging.String(logging.FieldEventType, "normalize_complete"),
		logging.String("binary", p.binary),
		logging.String("dataset_dir", datasetDir),
		logging.Int("test_every", cadence),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func tail(data []byte, limit int) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > limit {
		trimmed = trimmed[len(trimmed)-limit:]
	}
	return string(trimmed)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
