package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"realign/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	for _, access := range []Access{ReadOnly, ReadWrite} {
		result := CheckDirectoryAccess("test", dir, access)
		if !result.Passed {
			t.Fatalf("expected %s pass for temp dir, got: %s", access, result.Detail)
		}
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), ReadOnly)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, ReadOnly)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Unconfigured(t *testing.T) {
	if result := CheckDirectoryAccess("test", "", ReadOnly); result.Passed || result.Detail != "not configured" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckNormalizer(t *testing.T) {
	cfg := config.Default()
	if result := CheckNormalizer(&cfg); !result.Passed {
		t.Fatalf("in-process backend should pass, got %s", result.Detail)
	}

	cfg.Normalizer.Backend = config.BackendCommand
	cfg.Normalizer.Command = "realign-normalizer-that-does-not-exist"
	if result := CheckNormalizer(&cfg); result.Passed {
		t.Fatal("expected missing command to fail")
	}

	cfg.Normalizer.Command = "sh"
	if result := CheckNormalizer(&cfg); !result.Passed {
		t.Fatalf("expected sh to be found, got %s", result.Detail)
	}
}

func TestRunAll(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	results := filepath.Join(base, "results")
	for _, dir := range []string{results, cfg.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	dryRun := RunAll(&cfg, Plan{ResultsDir: results, DatasetDir: filepath.Join(base, "missing")})
	if len(dryRun) != 3 {
		t.Fatalf("dry run should skip the state check, got %d results", len(dryRun))
	}
	failed := Failed(dryRun)
	if len(failed) != 1 || failed[0].Name != "Dataset directory" {
		t.Fatalf("expected only the dataset check to fail, got %+v", failed)
	}

	write := RunAll(&cfg, Plan{ResultsDir: results, DatasetDir: base, Write: true})
	if len(write) != 4 || len(Failed(write)) != 0 {
		t.Fatalf("expected 4 passing checks, got %+v", write)
	}

	if RunAll(nil, Plan{}) != nil {
		t.Fatal("nil config should produce no results")
	}
}
