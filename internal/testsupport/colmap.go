package testsupport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"realign/internal/colmap"
)

// LookAtImage builds a registered image whose camera sits at center and looks
// at target, using the OpenCV axis convention (x right, y down, z forward)
// with world +Z as up.
func LookAtImage(id uint32, name string, center, target r3.Vec) colmap.Image {
	forward := r3.Unit(r3.Sub(target, center))
	right := r3.Unit(r3.Cross(forward, r3.Vec{Z: 1}))
	down := r3.Cross(forward, right)

	// Camera-to-world rotation has the camera axes as columns; the stored
	// pose is its transpose.
	w2c := mat.NewDense(3, 3, []float64{
		right.X, right.Y, right.Z,
		down.X, down.Y, down.Z,
		forward.X, forward.Y, forward.Z,
	})
	c := mat.NewVecDense(3, []float64{center.X, center.Y, center.Z})
	var rc mat.VecDense
	rc.MulVec(w2c, c)

	return colmap.Image{
		ID:       id,
		CameraID: 1,
		Name:     name,
		Qvec:     colmap.QuatFromRotation(w2c),
		Tvec:     [3]float64{-rc.AtVec(0), -rc.AtVec(1), -rc.AtVec(2)},
	}
}

// RingImages places n cameras on a horizontal circle around the origin, all
// looking at the origin. Names sort in placement order.
func RingImages(n int, radius, height float64) []colmap.Image {
	images := make([]colmap.Image, 0, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		center := r3.Vec{X: radius * math.Cos(angle), Y: radius * math.Sin(angle), Z: height}
		images = append(images, LookAtImage(uint32(i+1), fmt.Sprintf("frame_%03d.png", i), center, r3.Vec{}))
	}
	return images
}

// SlabPoints returns a deterministic, anisotropic point cloud: a dense floor
// slab with a sparse column above it, so principal axes are well separated
// and the median height sits below the mean.
func SlabPoints() []colmap.Point {
	var points []colmap.Point
	id := uint64(1)
	for ix := -8; ix <= 8; ix++ {
		for iy := -4; iy <= 4; iy++ {
			points = append(points, colmap.Point{ID: id, Position: r3.Vec{X: float64(ix) * 0.25, Y: float64(iy) * 0.2, Z: 0.01 * float64((ix+iy)%3)}})
			id++
		}
	}
	for iz := 1; iz <= 10; iz++ {
		points = append(points, colmap.Point{ID: id, Position: r3.Vec{X: 0.1, Y: -0.1, Z: 0.15 * float64(iz)}})
		id++
	}
	return points
}

// TransformPoints applies an affine map to a point set.
func TransformPoints(points []colmap.Point, fn func(r3.Vec) r3.Vec) []colmap.Point {
	out := make([]colmap.Point, len(points))
	for i, p := range points {
		out[i] = colmap.Point{ID: p.ID, Position: fn(p.Position)}
	}
	return out
}

// WriteColmapText writes images.txt and points3D.txt under dataset/sparse/0.
func WriteColmapText(t testing.TB, datasetDir string, images []colmap.Image, points []colmap.Point) {
	t.Helper()

	dir := filepath.Join(datasetDir, "sparse", "0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	var b strings.Builder
	b.WriteString("# Image list with two lines of data per image:\n")
	b.WriteString("#   IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME\n")
	b.WriteString("#   POINTS2D[] as (X, Y, POINT3D_ID)\n")
	for _, img := range images {
		fmt.Fprintf(&b, "%d %.17g %.17g %.17g %.17g %.17g %.17g %.17g %d %s\n",
			img.ID, img.Qvec[0], img.Qvec[1], img.Qvec[2], img.Qvec[3],
			img.Tvec[0], img.Tvec[1], img.Tvec[2], img.CameraID, img.Name)
		b.WriteString("\n")
	}
	writeFile(t, filepath.Join(dir, "images.txt"), []byte(b.String()))

	b.Reset()
	b.WriteString("# 3D point list with one line of data per point:\n")
	for _, p := range points {
		fmt.Fprintf(&b, "%d %.17g %.17g %.17g 128 128 128 0.5\n", p.ID, p.Position.X, p.Position.Y, p.Position.Z)
	}
	writeFile(t, filepath.Join(dir, "points3D.txt"), []byte(b.String()))
}

// WriteColmapBinary writes images.bin and points3D.bin under dataset/sparse
// (no "0" subdirectory) to exercise the fallback lookup.
func WriteColmapBinary(t testing.TB, datasetDir string, images []colmap.Image, points []colmap.Point) {
	t.Helper()

	dir := filepath.Join(datasetDir, "sparse")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	must := func(err error) {
		if err != nil {
			t.Fatalf("encode colmap binary: %v", err)
		}
	}
	must(binary.Write(&buf, le, uint64(len(images))))
	for _, img := range images {
		must(binary.Write(&buf, le, int32(img.ID)))
		must(binary.Write(&buf, le, img.Qvec))
		must(binary.Write(&buf, le, img.Tvec))
		must(binary.Write(&buf, le, int32(img.CameraID)))
		buf.WriteString(img.Name)
		buf.WriteByte(0)
		// One observation per image so the skip path is covered.
		must(binary.Write(&buf, le, uint64(1)))
		must(binary.Write(&buf, le, [2]float64{10, 20}))
		must(binary.Write(&buf, le, int64(-1)))
	}
	writeFile(t, filepath.Join(dir, "images.bin"), buf.Bytes())

	buf.Reset()
	must(binary.Write(&buf, le, uint64(len(points))))
	for _, p := range points {
		must(binary.Write(&buf, le, p.ID))
		must(binary.Write(&buf, le, [3]float64{p.Position.X, p.Position.Y, p.Position.Z}))
		buf.Write([]byte{200, 100, 50})
		must(binary.Write(&buf, le, 0.25))
		must(binary.Write(&buf, le, uint64(2)))
		must(binary.Write(&buf, le, [4]int32{1, 0, 2, 0}))
	}
	writeFile(t, filepath.Join(dir, "points3D.bin"), buf.Bytes())
}

// WriteDataset writes a small ring-of-cameras dataset in text form.
func WriteDataset(t testing.TB, datasetDir string, cameras int) {
	t.Helper()
	WriteColmapText(t, datasetDir, RingImages(cameras, 4, 1.5), SlabPoints())
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
