package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/sbinet/npyio/npz"

	"realign/internal/transform"
)

// Array names inside the bundle.
const (
	KeyAlign   = "align_transform"
	KeyBase    = "base_transform"
	KeySupport = "support_transform"
)

// DefaultTolerance bounds the element-wise error of Align·Support against Base
// once all three have been rounded to single precision.
const DefaultTolerance = 1e-4

// BackupSuffix is appended to an artifact path to name its backup copy.
const BackupSuffix = ".old"

// ErrInvariant reports an artifact whose alignment does not compose.
var ErrInvariant = errors.New("artifact invariant violated")

// ErrFormat reports an array that is not a 4x4 float matrix.
var ErrFormat = errors.New("unsupported artifact array")

// Artifact is the persisted result of one alignment computation.
type Artifact struct {
	Align   transform.Transform
	Base    transform.Transform
	Support transform.Transform
}

// New rounds the three transforms to the precision they are stored with.
func New(align, base, support transform.Transform) Artifact {
	return Artifact{Align: align.Float32(), Base: base.Float32(), Support: support.Float32()}
}

// BackupPath returns the sibling path used for the pre-overwrite copy.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// Residual returns the largest element difference between Align·Support and
// Base.
func (a Artifact) Residual() float64 {
	return a.Align.Mul(a.Support).MaxAbsDiff(a.Base)
}

// Check verifies Align·Support ≈ Base within tol.
func (a Artifact) Check(tol float64) error {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	for name, t := range map[string]transform.Transform{KeyAlign: a.Align, KeyBase: a.Base, KeySupport: a.Support} {
		if !t.IsFinite() {
			return fmt.Errorf("%w: %s has non-finite values", ErrInvariant, name)
		}
	}
	if diff := a.Residual(); diff >= tol {
		return fmt.Errorf("%w: align·support differs from base by %.3g (tolerance %.3g)", ErrInvariant, diff, tol)
	}
	return nil
}

// Write persists the artifact at path, creating parent directories. The
// bundle is written to a temporary sibling and renamed into place, so readers
// never observe a partial file.
func Write(path string, a Artifact) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := npz.NewWriter(tmp)
	for _, entry := range []struct {
		name string
		t    transform.Transform
	}{
		{KeyAlign, a.Align},
		{KeyBase, a.Base},
		{KeySupport, a.Support},
	} {
		if err := w.Write(entry.name, singleRows(entry.t)); err != nil {
			return fmt.Errorf("encode %s: %w", entry.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("move artifact into place: %w", err)
	}
	return nil
}

// Read loads an artifact written by Write or by numpy.savez. Arrays may be
// stored in single or double precision.
func Read(path string) (Artifact, error) {
	r, err := npz.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer r.Close()

	var a Artifact
	for _, entry := range []struct {
		name string
		dst  *transform.Transform
	}{
		{KeyAlign, &a.Align},
		{KeyBase, &a.Base},
		{KeySupport, &a.Support},
	} {
		t, err := readTransform(r, entry.name)
		if err != nil {
			return Artifact{}, fmt.Errorf("read %s from %s: %w", entry.name, path, err)
		}
		*entry.dst = t
	}
	return a, nil
}

func readTransform(r *npz.Reader, name string) (transform.Transform, error) {
	hdr := r.Header(name)
	if hdr == nil {
		return transform.Transform{}, fmt.Errorf("%w: array missing", ErrFormat)
	}
	if !slices.Equal(hdr.Descr.Shape, []int{transform.Size, transform.Size}) {
		return transform.Transform{}, fmt.Errorf("%w: shape %v, want [4 4]", ErrFormat, hdr.Descr.Shape)
	}

	var values []float64
	switch hdr.Descr.Type {
	case "<f4", "=f4", "|f4":
		var v []float32
		if err := r.Read(name, &v); err != nil {
			return transform.Transform{}, err
		}
		values = make([]float64, len(v))
		for i, x := range v {
			values[i] = float64(x)
		}
	case "<f8", "=f8", "|f8":
		if err := r.Read(name, &values); err != nil {
			return transform.Transform{}, err
		}
	default:
		return transform.Transform{}, fmt.Errorf("%w: dtype %s", ErrFormat, hdr.Descr.Type)
	}

	t, err := transform.FromSlice(values)
	if err != nil {
		return transform.Transform{}, err
	}
	if hdr.Descr.Fortran {
		t = t.Transpose()
	}
	return t, nil
}

// singleRows converts t to the row-major single-precision layout stored in
// the bundle.
func singleRows(t transform.Transform) [transform.Size][transform.Size]float32 {
	var rows [transform.Size][transform.Size]float32
	for r := 0; r < transform.Size; r++ {
		for c := 0; c < transform.Size; c++ {
			rows[r][c] = float32(t.At(r, c))
		}
	}
	return rows
}
