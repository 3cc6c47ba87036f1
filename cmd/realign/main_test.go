package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"realign/internal/artifact"
	"realign/internal/testsupport"
	"realign/internal/transform"
)

type cliEnv struct {
	base        string
	configPath  string
	stateDir    string
	resultsDir  string
	datasetDir  string
	historyPath string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("REALIGN_DATASET_DIR", "")
	t.Setenv("REALIGN_RESULTS_DIR", "")
	t.Setenv("NO_COLOR", "1")

	env := &cliEnv{
		base:       base,
		configPath: filepath.Join(base, "realign.toml"),
		stateDir:   filepath.Join(base, "state"),
		resultsDir: filepath.Join(base, "results"),
		datasetDir: filepath.Join(base, "dataset"),
	}
	env.historyPath = filepath.Join(env.stateDir, "history.db")
	for _, dir := range []string{env.resultsDir, env.datasetDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	contents := fmt.Sprintf(`[paths]
results_dir = %q
dataset_dir = %q
state_dir = %q

[logging]
level = "error"
`, env.resultsDir, env.datasetDir, env.stateDir)
	if err := os.WriteFile(env.configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath}, args...)...)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestComputeWritesArtifact(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteSceneDatasets(t, env.datasetDir, "garden", "iphone")
	sceneDir := filepath.Join(env.datasetDir, "garden", "iphone")
	output := filepath.Join(env.base, "out", "test_to_train.npz")

	stdout, _, err := env.run(t, "compute",
		"--train-dir", filepath.Join(sceneDir, "train"),
		"--subset-dir", filepath.Join(sceneDir, "test"),
		"--train-test-every", "8",
		"--eval-test-every", "1",
		"--output", output,
	)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "Wrote alignment transform to "+output {
		t.Fatalf("unexpected output %q", stdout)
	}
	a, err := artifact.Read(output)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if err := a.Check(artifact.DefaultTolerance); err != nil {
		t.Fatalf("artifact check: %v", err)
	}
}

func TestComputeRequiresFlags(t *testing.T) {
	env := setupCLIEnv(t)
	_, _, err := env.run(t, "compute", "--train-dir", env.datasetDir)
	if err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("expected required flag error, got %v", err)
	}
}

func TestComputeRejectsZeroCadence(t *testing.T) {
	env := setupCLIEnv(t)
	output := filepath.Join(env.base, "out.npz")
	_, _, err := env.run(t, "compute",
		"--train-dir", env.datasetDir,
		"--subset-dir", env.datasetDir,
		"--train-test-every", "0",
		"--eval-test-every", "1",
		"--output", output,
	)
	if err == nil {
		t.Fatal("expected invalid cadence error")
	}
	if _, statErr := os.Stat(output); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no artifact should be written, stat err = %v", statErr)
	}
}

func TestRegenerateEndToEnd(t *testing.T) {
	env := setupCLIEnv(t)
	artifactPath := testsupport.WriteResult(t, env.resultsDir, "garden", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteResultWithoutSidecar(t, env.resultsDir, "bicycle", "iphone", "gs")
	testsupport.WriteSceneDatasets(t, env.datasetDir, "garden", "iphone")
	original, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}

	stdout, _, err := env.run(t, "regenerate")
	if err != nil {
		t.Fatalf("regenerate failed: %v\n%s", err, stdout)
	}
	for _, want := range []string{
		"Regenerating Alignment Transforms",
		"Results dir: " + env.resultsDir,
		"Dry run: false",
		"bicycle/iphone/gs: sidecar missing",
		"Found 1 alignments to regenerate",
		"Processing: garden/iphone/gs",
		"✓ Successful: 1",
		"✗ Failed: 0",
		"Next steps:",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, stdout)
		}
	}

	backup, err := os.ReadFile(artifact.BackupPath(artifactPath))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(backup, original) {
		t.Fatal("backup differs from original artifact")
	}
	if _, err := artifact.Read(artifactPath); err != nil {
		t.Fatalf("regenerated artifact unreadable: %v", err)
	}

	historyOut, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(historyOut, env.datasetDir) {
		t.Fatalf("history should list the run:\n%s", historyOut)
	}
}

func TestRegenerateDryRunLeavesTreesUntouched(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteResult(t, env.resultsDir, "garden", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteSceneDatasets(t, env.datasetDir, "garden", "iphone")
	beforeResults := testsupport.SnapshotTree(t, env.resultsDir)
	beforeDatasets := testsupport.SnapshotTree(t, env.datasetDir)

	stdout, _, err := env.run(t, "regenerate", "--dry-run")
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(stdout, "[DRY RUN] Would regenerate alignment") ||
		!strings.Contains(stdout, "This was a DRY RUN. Run without --dry-run to actually regenerate.") {
		t.Fatalf("missing dry-run notices:\n%s", stdout)
	}
	if diff := cmp.Diff(beforeResults, testsupport.SnapshotTree(t, env.resultsDir)); diff != "" {
		t.Fatalf("results changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(beforeDatasets, testsupport.SnapshotTree(t, env.datasetDir)); diff != "" {
		t.Fatalf("datasets changed (-before +after):\n%s", diff)
	}
	if _, err := os.Stat(env.historyPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run must not create history, stat err = %v", err)
	}
}

func TestRegenerateFailsWhenAnyRecordFails(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteResult(t, env.resultsDir, "alpha", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteResult(t, env.resultsDir, "bravo", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteSceneDatasets(t, env.datasetDir, "alpha", "iphone")

	stdout, _, err := env.run(t, "regenerate", "--no-backup")
	if !errors.Is(err, errRecordsFailed) {
		t.Fatalf("expected errRecordsFailed, got %v", err)
	}
	if !strings.Contains(stdout, "✓ Successful: 1") || !strings.Contains(stdout, "✗ Failed: 1") {
		t.Fatalf("unexpected summary:\n%s", stdout)
	}
	if _, err := os.Stat(artifact.BackupPath(filepath.Join(env.resultsDir, "alpha", "iphone", "gs", "alignments", "test_to_train.npz"))); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("--no-backup must not write a backup, stat err = %v", err)
	}
}

func TestRegenerateWithoutAlignments(t *testing.T) {
	env := setupCLIEnv(t)
	stdout, _, err := env.run(t, "regenerate")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !strings.Contains(stdout, "No alignments found!") {
		t.Fatalf("expected empty notice:\n%s", stdout)
	}
}

func TestRegenerateScenesFilter(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteResult(t, env.resultsDir, "alpha", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteResult(t, env.resultsDir, "bravo", "iphone", "gs", "test_every: 8\n")

	stdout, _, err := env.run(t, "regenerate", "--dry-run", "--scenes", "bravo")
	if !errors.Is(err, errRecordsFailed) {
		t.Fatalf("bravo has no datasets and should fail, got %v", err)
	}
	if strings.Contains(stdout, "Processing: alpha") || !strings.Contains(stdout, "Processing: bravo/iphone/gs") {
		t.Fatalf("scene filter not applied:\n%s", stdout)
	}
}

func TestRegenerateRequiresDatasetDir(t *testing.T) {
	env := setupCLIEnv(t)
	contents := fmt.Sprintf("[paths]\nresults_dir = %q\nstate_dir = %q\n", env.resultsDir, env.stateDir)
	if err := os.WriteFile(env.configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, stderr, err := env.run(t, "regenerate")
	if err == nil || err.Error() != "Dataset directory is not configured" {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(stderr, "REALIGN_DATASET_DIR") {
		t.Fatalf("expected suggestions on stderr:\n%s", stderr)
	}
}

func TestRegenerateRefusesWhenLocked(t *testing.T) {
	env := setupCLIEnv(t)
	if err := os.MkdirAll(env.stateDir, 0o755); err != nil {
		t.Fatalf("mkdir state: %v", err)
	}
	lock := flock.New(filepath.Join(env.stateDir, "regenerate.lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	_, _, err = env.run(t, "regenerate")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}
	if _, _, err := env.run(t, "regenerate", "--dry-run"); err != nil {
		t.Fatalf("dry run should not need the lock: %v", err)
	}
}

func TestScanOutputFormats(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteResult(t, env.resultsDir, "garden", "iphone", "gs", "test_every: 4\n")
	testsupport.WriteResult(t, env.resultsDir, "garden", "iphone", "nerf", "seed: 0\n")
	testsupport.WriteResultWithoutSidecar(t, env.resultsDir, "bicycle", "iphone", "gs")

	stdout, _, err := env.run(t, "scan", "--format", "json")
	if err != nil {
		t.Fatalf("scan json: %v", err)
	}
	var report scanReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode json: %v\n%s", err, stdout)
	}
	cadences := map[string]int{}
	for _, r := range report.Records {
		cadences[r.Variant] = r.TestEvery
	}
	if diff := cmp.Diff(map[string]int{"gs": 4, "nerf": 8}, cadences); diff != "" {
		t.Fatalf("unexpected cadences (-want +got):\n%s", diff)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Record != "bicycle/iphone/gs" {
		t.Fatalf("unexpected skipped list: %+v", report.Skipped)
	}

	stdout, _, err = env.run(t, "scan", "--format", "yaml")
	if err != nil {
		t.Fatalf("scan yaml: %v", err)
	}
	var fromYAML scanReport
	if err := yaml.Unmarshal([]byte(stdout), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, stdout)
	}
	if diff := cmp.Diff(report, fromYAML); diff != "" {
		t.Fatalf("json and yaml reports differ (-json +yaml):\n%s", diff)
	}

	stdout, _, err = env.run(t, "scan")
	if err != nil {
		t.Fatalf("scan table: %v", err)
	}
	if !strings.Contains(stdout, "8 (default)") || !strings.Contains(stdout, "2 alignment(s) found") {
		t.Fatalf("unexpected table output:\n%s", stdout)
	}

	if _, _, err := env.run(t, "scan", "--format", "xml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestVerifyReportsBrokenArtifacts(t *testing.T) {
	dir := t.TempDir()
	base := transform.FromRows([4][4]float64{{2, 0, 0, 1}, {0, 2, 0, 0}, {0, 0, 2, 0}, {0, 0, 0, 1}})
	support := transform.FromRows([4][4]float64{{1, 0, 0, 0}, {0, 1, 0, 3}, {0, 0, 1, 0}, {0, 0, 0, 1}})
	inv, err := support.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	good := filepath.Join(dir, "good.npz")
	bad := filepath.Join(dir, "bad.npz")
	if err := artifact.Write(good, artifact.New(base.Mul(inv), base, support)); err != nil {
		t.Fatalf("write good: %v", err)
	}
	if err := artifact.Write(bad, artifact.New(transform.Identity(), base, support)); err != nil {
		t.Fatalf("write bad: %v", err)
	}

	if stdout, _, err := runCLI(t, "verify", good); err != nil {
		t.Fatalf("verify good: %v\n%s", err, stdout)
	}
	stdout, _, err := runCLI(t, "verify", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected one failure, got %v", err)
	}
	if !strings.Contains(stdout, "invalid") {
		t.Fatalf("expected invalid row:\n%s", stdout)
	}
}

func TestDepsWithInProcessNormalizer(t *testing.T) {
	env := setupCLIEnv(t)
	stdout, _, err := env.run(t, "deps")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if !strings.Contains(stdout, "no external programs required") {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
}

func TestDepsReportsMissingCommand(t *testing.T) {
	env := setupCLIEnv(t)
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	fmt.Fprintln(f, "\n[normalizer]\nbackend = \"command\"\ncommand = \"realign-normalizer-that-does-not-exist\"")
	f.Close()

	stdout, _, err := env.run(t, "deps")
	if err == nil {
		t.Fatalf("expected missing dependency error:\n%s", stdout)
	}
	if !strings.Contains(stdout, "realign-normalizer-that-does-not-exist") {
		t.Fatalf("expected command in table:\n%s", stdout)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)
	target := filepath.Join(env.base, "generated", "config.toml")

	stdout, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, "Wrote sample configuration to "+target) {
		t.Fatalf("unexpected output %q", stdout)
	}
	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	stdout, _, err = env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Config path: "+env.configPath) || !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected validate output:\n%s", stdout)
	}
}

func TestHistoryShowsRunOutcomes(t *testing.T) {
	env := setupCLIEnv(t)
	testsupport.WriteResult(t, env.resultsDir, "garden", "iphone", "gs", "test_every: 8\n")
	testsupport.WriteSceneDatasets(t, env.datasetDir, "garden", "iphone")
	if _, _, err := env.run(t, "regenerate"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	listOut, _, err := env.run(t, "history", "--limit", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(listOut, "\n")
	var runID string
	for _, line := range lines {
		fields := strings.Fields(strings.Trim(line, "│ "))
		if len(fields) > 0 && len(fields[0]) == 8 && fields[0] != "Run" {
			runID = fields[0]
			break
		}
	}
	if runID == "" {
		t.Fatalf("no run id in history output:\n%s", listOut)
	}

	detail, _, err := env.run(t, "history", "--run", runID)
	if err != nil {
		t.Fatalf("history --run: %v", err)
	}
	if !strings.Contains(detail, "garden/iphone/gs") || !strings.Contains(detail, "regenerated") {
		t.Fatalf("unexpected run detail:\n%s", detail)
	}
}
