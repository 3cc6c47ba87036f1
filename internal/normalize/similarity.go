package normalize

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"realign/internal/colmap"
	"realign/internal/transform"
)

// minPoints is the smallest cloud with a meaningful covariance.
const minPoints = 3

// upsideDown rotates 180 degrees about x, flipping y and z.
var upsideDown = transform.FromRows([4][4]float64{
	{1, 0, 0, 0},
	{0, -1, 0, 0},
	{0, 0, -1, 0},
	{0, 0, 0, 1},
})

// FromModel normalizes a sparse model using only the poses retained under
// cadence. The result maps raw model coordinates into the canonical frame:
// cameras recentred on their common focus and scaled to unit median distance,
// points rotated onto their principal axes, and the scene flipped when the
// point cloud is denser above its mean height than below.
func FromModel(model *colmap.Model, cadence int) (transform.Transform, error) {
	if err := ValidateCadence(cadence); err != nil {
		return transform.Transform{}, err
	}
	if len(model.Images) == 0 {
		return transform.Transform{}, fmt.Errorf("%w: no registered images in %s", ErrMalformedPoses, model.Dir)
	}

	retained := RetainedIndices(len(model.Images), cadence)
	cameras := make([]transform.Transform, 0, len(retained))
	for _, idx := range retained {
		cameras = append(cameras, model.Images[idx].CameraToWorld())
	}

	t1, err := SimilarityFromCameras(cameras)
	if err != nil {
		return transform.Transform{}, err
	}

	points := make([]r3.Vec, len(model.Points))
	for i, p := range model.Points {
		points[i] = t1.ApplyPoint(p.Position)
	}
	t2, err := AlignPrincipalAxes(points)
	if err != nil {
		return transform.Transform{}, err
	}

	result := t2.Mul(t1)
	zs := make([]float64, len(points))
	for i, p := range points {
		zs[i] = t2.ApplyPoint(p).Z
	}
	if median(zs) > stat.Mean(zs, nil) {
		result = upsideDown.Mul(result)
	}

	if !result.IsFinite() {
		return transform.Transform{}, fmt.Errorf("%w: normalization produced non-finite values for %s", ErrMalformedPoses, model.Dir)
	}
	return result, nil
}

// SimilarityFromCameras computes the similarity transform that levels the
// averaged camera up vector, recentres the scene on the median closest point
// of the camera optical axes to the origin, and scales so the median camera
// distance is 1.
func SimilarityFromCameras(cameraToWorld []transform.Transform) (transform.Transform, error) {
	n := len(cameraToWorld)
	if n == 0 {
		return transform.Transform{}, fmt.Errorf("%w: no cameras to normalize", ErrMalformedPoses)
	}

	// Camera up is -y in the OpenCV convention.
	var upSum r3.Vec
	for _, c2w := range cameraToWorld {
		upSum = r3.Add(upSum, r3.Scale(-1, column(c2w, 1)))
	}
	meanUp := r3.Scale(1/float64(n), upSum)
	if r3.Norm(meanUp) == 0 {
		return transform.Transform{}, fmt.Errorf("%w: camera up vectors cancel out", ErrMalformedPoses)
	}
	worldUp := r3.Unit(meanUp)

	upCam := r3.Vec{Y: -1}
	c := r3.Dot(upCam, worldUp)
	var align *mat.Dense
	if c > -1 {
		cross := r3.Cross(worldUp, upCam)
		skew := mat.NewDense(3, 3, []float64{
			0, -cross.Z, cross.Y,
			cross.Z, 0, -cross.X,
			-cross.Y, cross.X, 0,
		})
		var sq mat.Dense
		sq.Mul(skew, skew)
		sq.Scale(1/(1+c), &sq)
		align = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
		align.Add(align, skew)
		align.Add(align, &sq)
	} else {
		// World up already points along camera-space +y.
		align = mat.NewDense(3, 3, []float64{-1, 0, 0, 0, 1, 0, 0, 0, 1})
	}

	centers := make([]r3.Vec, n)
	nearest := make([]r3.Vec, n)
	for i, c2w := range cameraToWorld {
		t := rotate(align, column(c2w, 3))
		fwd := rotate(align, column(c2w, 2))
		centers[i] = t
		nearest[i] = r3.Add(t, r3.Scale(r3.Dot(fwd, r3.Scale(-1, t)), fwd))
	}
	translate := r3.Scale(-1, medianVec(nearest))

	distances := make([]float64, n)
	for i, t := range centers {
		distances[i] = r3.Norm(r3.Add(t, translate))
	}
	med := median(distances)
	if med == 0 || math.IsNaN(med) {
		return transform.Transform{}, fmt.Errorf("%w: cameras coincide with their focus point", ErrMalformedPoses)
	}
	scale := 1 / med

	result := transform.FromRotationTranslation(align, translate)
	for r := 0; r < 3; r++ {
		for col := 0; col < transform.Size; col++ {
			result.Set(r, col, result.At(r, col)*scale)
		}
	}
	return result, nil
}

// AlignPrincipalAxes returns the rigid transform that moves the median of the
// cloud to the origin and rotates its principal axes onto x, y, z in order of
// decreasing variance. The rotation is kept right-handed.
func AlignPrincipalAxes(points []r3.Vec) (transform.Transform, error) {
	if len(points) < minPoints {
		return transform.Transform{}, fmt.Errorf("%w: need at least %d points, got %d", ErrMalformedPoses, minPoints, len(points))
	}

	centroid := medianVec(points)
	data := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		d := r3.Sub(p, centroid)
		data.SetRow(i, []float64{d.X, d.Y, d.Z})
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return transform.Transform{}, fmt.Errorf("%w: eigen decomposition of point covariance failed", ErrMalformedPoses)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back ascending; reverse the columns for descending.
	axes := mat.NewDense(3, 3, nil)
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			axes.Set(row, col, vecs.At(row, 2-col))
		}
	}
	if mat.Det(axes) < 0 {
		for row := 0; row < 3; row++ {
			axes.Set(row, 0, -axes.At(row, 0))
		}
	}

	var rot mat.Dense
	rot.CloneFrom(axes.T())
	offset := r3.Scale(-1, rotate(&rot, centroid))
	return transform.FromRotationTranslation(&rot, offset), nil
}

func column(t transform.Transform, c int) r3.Vec {
	return r3.Vec{X: t.At(0, c), Y: t.At(1, c), Z: t.At(2, c)}
}

func rotate(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// median averages the two middle values for even-length input.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func medianVec(points []r3.Vec) r3.Vec {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return r3.Vec{X: median(xs), Y: median(ys), Z: median(zs)}
}
