package normalize

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"realign/internal/transform"
)

type stubExecutor struct {
	stdout string
	stderr string
	err    error

	binary string
	args   []string
	calls  int
}

func (s *stubExecutor) Run(_ context.Context, binary string, args []string) ([]byte, []byte, error) {
	s.calls++
	s.binary = binary
	s.args = append([]string(nil), args...)
	return []byte(s.stdout), []byte(s.stderr), s.err
}

func TestCommandProviderParsesOutput(t *testing.T) {
	stub := &stubExecutor{stdout: "[[2, 0, 0, 1]\n [0, 2, 0, 0]\n [0, 0, 2, 0]\n [0, 0, 0, 1]]\n"}
	provider, err := NewCommandProvider("normalize-scene", nil, 30, WithExecutor(stub))
	if err != nil {
		t.Fatalf("NewCommandProvider returned error: %v", err)
	}

	dir := t.TempDir()
	got, err := provider.Normalize(context.Background(), dir, 8)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want := transform.FromRows([4][4]float64{{2, 0, 0, 1}, {0, 2, 0, 0}, {0, 0, 2, 0}, {0, 0, 0, 1}})
	if got != want {
		t.Fatalf("unexpected transform:\n%v", got)
	}
	if stub.binary != "normalize-scene" {
		t.Fatalf("unexpected binary %q", stub.binary)
	}
	wantArgs := []string{"--data-dir", dir, "--test-every", "8"}
	if !slices.Equal(stub.args, wantArgs) {
		t.Fatalf("args = %v, want %v", stub.args, wantArgs)
	}
}

func TestCommandProviderExpandsTemplate(t *testing.T) {
	provider, err := NewCommandProvider("norm", []string{"--scene={data_dir}", "-k", "{test_every}"}, 0)
	if err != nil {
		t.Fatalf("NewCommandProvider returned error: %v", err)
	}
	got := provider.Args("/data/garden/iphone/train", 1)
	want := []string{"--scene=/data/garden/iphone/train", "-k", "1"}
	if !slices.Equal(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}
}

func TestCommandProviderCapturesStderr(t *testing.T) {
	stub := &stubExecutor{stderr: "Traceback\nValueError: no poses found\n", err: errors.New("exit status 1")}
	provider, err := NewCommandProvider("norm", nil, 0, WithExecutor(stub))
	if err != nil {
		t.Fatalf("NewCommandProvider returned error: %v", err)
	}
	_, err = provider.Normalize(context.Background(), t.TempDir(), 8)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "no poses found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCommandProviderMalformedOutput(t *testing.T) {
	stub := &stubExecutor{stdout: "1 0 0 0\n0 1 0 0\n"}
	provider, err := NewCommandProvider("norm", nil, 0, WithExecutor(stub))
	if err != nil {
		t.Fatalf("NewCommandProvider returned error: %v", err)
	}
	if _, err := provider.Normalize(context.Background(), t.TempDir(), 8); !errors.Is(err, ErrMalformedPoses) {
		t.Fatalf("expected ErrMalformedPoses, got %v", err)
	}
}

func TestCommandProviderChecksDatasetBeforeRunning(t *testing.T) {
	stub := &stubExecutor{stdout: "1 0 0 0 0 1 0 0 0 0 1 0 0 0 0 1"}
	provider, err := NewCommandProvider("norm", nil, 0, WithExecutor(stub))
	if err != nil {
		t.Fatalf("NewCommandProvider returned error: %v", err)
	}
	_, err = provider.Normalize(context.Background(), filepath.Join(t.TempDir(), "missing"), 8)
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Fatalf("expected ErrDatasetNotFound, got %v", err)
	}
	_, err = provider.Normalize(context.Background(), t.TempDir(), 0)
	if !errors.Is(err, ErrInvalidCadence) {
		t.Fatalf("expected ErrInvalidCadence, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("executor should not run, got %d calls", stub.calls)
	}
}

func TestNewCommandProviderRequiresBinary(t *testing.T) {
	if _, err := NewCommandProvider("  ", nil, 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
