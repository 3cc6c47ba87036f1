package colmap

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"realign/internal/transform"
)

// ErrModelNotFound reports a dataset directory without a sparse model.
var ErrModelNotFound = errors.New("colmap model not found")

// Image is one registered image: a world-to-camera pose plus its file name.
type Image struct {
	ID       uint32
	CameraID uint32
	Name     string
	// Qvec is the world-to-camera rotation as a unit quaternion (w, x, y, z).
	Qvec [4]float64
	// Tvec is the world-to-camera translation.
	Tvec [3]float64
}

// Point is one triangulated 3D point.
type Point struct {
	ID       uint64
	Position r3.Vec
}

// Model holds the poses and points of one sparse reconstruction.
type Model struct {
	Dir    string
	Images []Image
	Points []Point
}

// ModelDir returns the sparse model directory for a dataset, preferring
// sparse/0 and falling back to sparse.
func ModelDir(datasetDir string) (string, error) {
	for _, candidate := range []string{
		filepath.Join(datasetDir, "sparse", "0"),
		filepath.Join(datasetDir, "sparse"),
	} {
		if hasModel(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w under %s", ErrModelNotFound, datasetDir)
}

func hasModel(dir string) bool {
	for _, name := range []string{"images.bin", "images.txt"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// Load reads the sparse model of a dataset directory. Binary files win over
// text files when both are present.
func Load(datasetDir string) (*Model, error) {
	dir, err := ModelDir(datasetDir)
	if err != nil {
		return nil, err
	}

	model := &Model{Dir: dir}
	if exists(filepath.Join(dir, "images.bin")) {
		if model.Images, err = readImagesBinary(filepath.Join(dir, "images.bin")); err != nil {
			return nil, err
		}
	} else if model.Images, err = readImagesText(filepath.Join(dir, "images.txt")); err != nil {
		return nil, err
	}

	switch {
	case exists(filepath.Join(dir, "points3D.bin")):
		model.Points, err = readPointsBinary(filepath.Join(dir, "points3D.bin"))
	case exists(filepath.Join(dir, "points3D.txt")):
		model.Points, err = readPointsText(filepath.Join(dir, "points3D.txt"))
	default:
		err = fmt.Errorf("points3D missing in %s: %w", dir, fs.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(model.Images, func(i, j int) bool {
		return model.Images[i].Name < model.Images[j].Name
	})
	return model, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Rotation returns the 3×3 world-to-camera rotation of the image.
func (img Image) Rotation() *mat.Dense {
	w, x, y, z := img.Qvec[0], img.Qvec[1], img.Qvec[2], img.Qvec[3]
	return mat.NewDense(3, 3, []float64{
		1 - 2*y*y - 2*z*z, 2*x*y - 2*w*z, 2*z*x + 2*w*y,
		2*x*y + 2*w*z, 1 - 2*x*x - 2*z*z, 2*y*z - 2*w*x,
		2*z*x - 2*w*y, 2*y*z + 2*w*x, 1 - 2*x*x - 2*y*y,
	})
}

// WorldToCamera returns the image pose as a world-to-camera transform.
func (img Image) WorldToCamera() transform.Transform {
	return transform.FromRotationTranslation(img.Rotation(), r3.Vec{X: img.Tvec[0], Y: img.Tvec[1], Z: img.Tvec[2]})
}

// CameraToWorld returns the inverse pose, [Rᵀ | -Rᵀt].
func (img Image) CameraToWorld() transform.Transform {
	rot := img.Rotation()
	var rt mat.Dense
	rt.CloneFrom(rot.T())
	t := mat.NewVecDense(3, []float64{img.Tvec[0], img.Tvec[1], img.Tvec[2]})
	var center mat.VecDense
	center.MulVec(&rt, t)
	return transform.FromRotationTranslation(&rt, r3.Vec{X: -center.AtVec(0), Y: -center.AtVec(1), Z: -center.AtVec(2)})
}

// QuatFromRotation converts a proper 3×3 rotation into a unit quaternion
// (w, x, y, z) with non-negative w.
func QuatFromRotation(m mat.Matrix) [4]float64 {
	m00, m01, m02 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m10, m11, m12 := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	m20, m21, m22 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	var q [4]float64
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		q = [4]float64{s / 4, (m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = [4]float64{(m21 - m12) / s, s / 4, (m01 + m10) / s, (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = [4]float64{(m02 - m20) / s, (m01 + m10) / s, s / 4, (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = [4]float64{(m10 - m01) / s, (m02 + m20) / s, (m12 + m21) / s, s / 4}
	}
	if q[0] < 0 {
		for i := range q {
			q[i] = -q[i]
		}
	}
	return q
}
