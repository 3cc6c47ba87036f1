package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"realign/internal/config"
	"realign/internal/deps"
)

// Access is the permission set a directory check requires.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) mode() uint32 {
	if a == ReadWrite {
		return unix.R_OK | unix.W_OK | unix.X_OK
	}
	return unix.R_OK | unix.X_OK
}

func (a Access) String() string {
	if a == ReadWrite {
		return "read/write"
	}
	return "read"
}

// CheckDirectoryAccess verifies that the directory exists and grants access.
func CheckDirectoryAccess(name, path string, access Access) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, access.mode()); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s ok)", path, access)}
}

// NormalizerRequirements lists the external programs the configured backend
// needs. The in-process backend needs none.
func NormalizerRequirements(cfg *config.Config) []deps.Requirement {
	if cfg.Normalizer.Backend != config.BackendCommand {
		return nil
	}
	return []deps.Requirement{{
		Name:        "Normalizer",
		Command:     cfg.Normalizer.Command,
		Description: "Derives dataset normalization transforms",
	}}
}

// CheckNormalizer verifies that the configured normalizer can run.
func CheckNormalizer(cfg *config.Config) Result {
	const name = "Normalizer"
	requirements := NormalizerRequirements(cfg)
	if len(requirements) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("in-process %s", cfg.Normalizer.Backend)}
	}
	status := deps.CheckBinaries(requirements)[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	return Result{Name: name, Passed: true, Detail: status.Path}
}
