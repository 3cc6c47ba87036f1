package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Size is the row and column count of a homogeneous transform.
const Size = 4

// ErrSingularTransform reports a transform that cannot be inverted.
var ErrSingularTransform = errors.New("singular transform")

// Transform is a 4×4 homogeneous coordinate transform stored row-major.
type Transform [Size * Size]float64

// Identity returns the identity transform.
func Identity() Transform {
	var t Transform
	for i := 0; i < Size; i++ {
		t[i*Size+i] = 1
	}
	return t
}

// FromRows builds a transform from four rows of four values.
func FromRows(rows [Size][Size]float64) Transform {
	var t Transform
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			t[r*Size+c] = rows[r][c]
		}
	}
	return t
}

// FromSlice builds a transform from exactly 16 row-major values.
func FromSlice(values []float64) (Transform, error) {
	var t Transform
	if len(values) != Size*Size {
		return t, fmt.Errorf("transform needs %d values, got %d", Size*Size, len(values))
	}
	copy(t[:], values)
	return t, nil
}

// FromDense copies a 4×4 gonum matrix into a Transform.
func FromDense(m mat.Matrix) (Transform, error) {
	var t Transform
	r, c := m.Dims()
	if r != Size || c != Size {
		return t, fmt.Errorf("transform must be %dx%d, got %dx%d", Size, Size, r, c)
	}
	for i := 0; i < Size; i++ {
		for j := 0; j < Size; j++ {
			t[i*Size+j] = m.At(i, j)
		}
	}
	return t, nil
}

// FromRotationTranslation assembles [R | t] from a 3×3 matrix and a
// translation, with a homogeneous last row.
func FromRotationTranslation(rot mat.Matrix, trans r3.Vec) Transform {
	t := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i*Size+j] = rot.At(i, j)
		}
	}
	t[3], t[7], t[11] = trans.X, trans.Y, trans.Z
	return t
}

// At returns the element at row r, column c.
func (t Transform) At(r, c int) float64 {
	return t[r*Size+c]
}

// Set assigns the element at row r, column c.
func (t *Transform) Set(r, c int, v float64) {
	t[r*Size+c] = v
}

// Dense returns a gonum copy of the transform.
func (t Transform) Dense() *mat.Dense {
	data := make([]float64, Size*Size)
	copy(data, t[:])
	return mat.NewDense(Size, Size, data)
}

// Mul returns t·o.
func (t Transform) Mul(o Transform) Transform {
	var out mat.Dense
	out.Mul(t.Dense(), o.Dense())
	res, _ := FromDense(&out)
	return res
}

// Transpose swaps rows and columns.
func (t Transform) Transpose() Transform {
	var out Transform
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			out[c*Size+r] = t[r*Size+c]
		}
	}
	return out
}

// Inverse returns t⁻¹ or ErrSingularTransform when t is singular or too
// ill-conditioned for a stable inverse.
func (t Transform) Inverse() (Transform, error) {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Transform{}, fmt.Errorf("%w: non-finite element", ErrSingularTransform)
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(t.Dense()); err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}
	return FromDense(&inv)
}

// Det returns the determinant.
func (t Transform) Det() float64 {
	return mat.Det(t.Dense())
}

// Float32 rounds every element through single precision.
func (t Transform) Float32() Transform {
	var out Transform
	for i, v := range t {
		out[i] = float64(float32(v))
	}
	return out
}

// MaxAbsDiff returns the largest absolute element difference between t and o.
func (t Transform) MaxAbsDiff(o Transform) float64 {
	var worst float64
	for i := range t {
		if d := math.Abs(t[i] - o[i]); d > worst || math.IsNaN(d) {
			worst = d
		}
	}
	return worst
}

// ApproxEqual reports whether every element differs by less than tol.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	return t.MaxAbsDiff(o) < tol
}

// ApplyPoint maps p through the affine part of t.
func (t Transform) ApplyPoint(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// IsFinite reports whether every element is a finite number.
func (t Transform) IsFinite() bool {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Parse reads 16 numbers in row-major order from free-form text. Whitespace,
// commas, semicolons and brackets all separate values, so NumPy array prints
// and savetxt output are both accepted.
func Parse(text string) (Transform, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', ';', '[', ']':
			return true
		}
		return false
	})
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Transform{}, fmt.Errorf("parse transform value %q: %w", f, err)
		}
		values = append(values, v)
	}
	return FromSlice(values)
}

// String renders the transform as four bracketed rows.
func (t Transform) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for r := 0; r < Size; r++ {
		if r > 0 {
			b.WriteString(",\n ")
		}
		b.WriteByte('[')
		for c := 0; c < Size; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(t.At(r, c), 'g', 8, 64))
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}
