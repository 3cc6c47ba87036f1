package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sbinet/npyio/npz"

	"realign/internal/transform"
)

func sampleArtifact(t *testing.T) Artifact {
	t.Helper()
	base := transform.FromRows([4][4]float64{
		{0.8, -0.6, 0, 0.3},
		{0.6, 0.8, 0, -1.2},
		{0, 0, 1, 0.45},
		{0, 0, 0, 1},
	})
	support := transform.FromRows([4][4]float64{
		{0.5, 0, 0, 0.1},
		{0, 0.5, 0, 0.2},
		{0, 0, 0.5, -0.3},
		{0, 0, 0, 1},
	})
	inv, err := support.Inverse()
	if err != nil {
		t.Fatalf("invert support: %v", err)
	}
	return New(base.Mul(inv), base, support)
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garden", "iphone", "alignments", "test_to_train.npz")
	want := sampleArtifact(t)

	if err := Write(path, want); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if err := got.Check(DefaultTolerance); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_to_train.npz")
	if err := Write(path, sampleArtifact(t)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "test_to_train.npz" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %s", strings.Join(names, ", "))
	}
}

func TestNewRoundsToSinglePrecision(t *testing.T) {
	third := transform.Identity()
	third.Set(0, 3, 1.0/3.0)
	a := New(third, third, transform.Identity())
	if a.Align.At(0, 3) != float64(float32(1.0/3.0)) {
		t.Fatalf("expected float32 rounding, got %.17g", a.Align.At(0, 3))
	}
}

func TestCheckDetectsBrokenComposition(t *testing.T) {
	a := sampleArtifact(t)
	a.Align.Set(0, 3, a.Align.At(0, 3)+0.01)
	if err := a.Check(DefaultTolerance); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestReadMissingArray(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "absent.npz")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestBackupPath(t *testing.T) {
	if got := BackupPath("/r/alignments/test_to_train.npz"); got != "/r/alignments/test_to_train.npz.old" {
		t.Fatalf("unexpected backup path %q", got)
	}
}

// writeBundle stores arrays the way numpy.savez does, bypassing Write.
func writeBundle(t *testing.T, path string, arrays map[string]any) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := npz.NewWriter(f)
	for _, name := range []string{KeyAlign, KeyBase, KeySupport} {
		if err := w.Write(name, arrays[name]); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func float64Rows(tr transform.Transform) [4][4]float64 {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = tr.At(r, c)
		}
	}
	return rows
}

func TestWriteStoresSinglePrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_to_train.npz")
	if err := Write(path, sampleArtifact(t)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	r, err := npz.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, name := range []string{KeyAlign, KeyBase, KeySupport} {
		hdr := r.Header(name)
		if hdr == nil {
			t.Fatalf("%s missing from bundle", name)
		}
		if hdr.Descr.Type != "<f4" {
			t.Errorf("%s dtype = %q, want <f4", name, hdr.Descr.Type)
		}
		if diff := cmp.Diff([]int{4, 4}, hdr.Descr.Shape); diff != "" {
			t.Errorf("%s shape mismatch (-want +got):\n%s", name, diff)
		}
		if hdr.Descr.Fortran {
			t.Errorf("%s stored in column-major order", name)
		}
	}
}

func TestReadAcceptsSinglePrecisionBundle(t *testing.T) {
	want := sampleArtifact(t)
	path := filepath.Join(t.TempDir(), "test_to_train.npz")
	writeBundle(t, path, map[string]any{
		KeyAlign:   singleRows(want.Align),
		KeyBase:    singleRows(want.Base),
		KeySupport: singleRows(want.Support),
	})

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("single precision read mismatch (-want +got):\n%s", diff)
	}
	if err := got.Check(DefaultTolerance); err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
}

func TestReadAcceptsDoublePrecisionBundle(t *testing.T) {
	want := sampleArtifact(t)
	path := filepath.Join(t.TempDir(), "test_to_train.npz")
	writeBundle(t, path, map[string]any{
		KeyAlign:   float64Rows(want.Align),
		KeyBase:    float64Rows(want.Base),
		KeySupport: float64Rows(want.Support),
	})

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("double precision read mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRejectsWrongShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_to_train.npz")
	var small [3][3]float32
	writeBundle(t, path, map[string]any{KeyAlign: small, KeyBase: small, KeySupport: small})

	if _, err := Read(path); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}
