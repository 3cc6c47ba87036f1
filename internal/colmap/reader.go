package colmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Counts larger than this are treated as corruption rather than allocated.
const maxRecords = 1 << 28

func readImagesBinary(path string) ([]Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open images: %w", err)
	}
	defer f.Close()

	r := &binReader{r: bufio.NewReader(f)}
	count := r.u64()
	if r.err == nil && count > maxRecords {
		return nil, fmt.Errorf("images.bin: implausible image count %d", count)
	}
	images := make([]Image, 0, int(count))
	for i := uint64(0); i < count && r.err == nil; i++ {
		var img Image
		img.ID = uint32(r.i32())
		for k := range img.Qvec {
			img.Qvec[k] = r.f64()
		}
		for k := range img.Tvec {
			img.Tvec[k] = r.f64()
		}
		img.CameraID = uint32(r.i32())
		img.Name = r.cstring()
		points2D := r.u64()
		if r.err == nil && points2D > maxRecords {
			return nil, fmt.Errorf("images.bin: implausible 2D point count %d for %q", points2D, img.Name)
		}
		// x, y as float64 and the point3D id as int64 per observation.
		r.skip(int64(points2D) * 24)
		images = append(images, img)
	}
	if r.err != nil {
		return nil, fmt.Errorf("read %s: %w", path, r.err)
	}
	return images, nil
}

func readPointsBinary(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open points: %w", err)
	}
	defer f.Close()

	r := &binReader{r: bufio.NewReader(f)}
	count := r.u64()
	if r.err == nil && count > maxRecords {
		return nil, fmt.Errorf("points3D.bin: implausible point count %d", count)
	}
	points := make([]Point, 0, int(count))
	for i := uint64(0); i < count && r.err == nil; i++ {
		var p Point
		p.ID = r.u64()
		p.Position = r3.Vec{X: r.f64(), Y: r.f64(), Z: r.f64()}
		r.skip(3) // rgb
		r.f64()   // reprojection error
		track := r.u64()
		if r.err == nil && track > maxRecords {
			return nil, fmt.Errorf("points3D.bin: implausible track length %d", track)
		}
		r.skip(int64(track) * 8)
		points = append(points, p)
	}
	if r.err != nil {
		return nil, fmt.Errorf("read %s: %w", path, r.err)
	}
	return points, nil
}

type binReader struct {
	r   *bufio.Reader
	err error
	buf [8]byte
}

func (b *binReader) read(n int) []byte {
	if b.err != nil {
		return b.buf[:n]
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		b.err = err
	}
	return b.buf[:n]
}

func (b *binReader) u64() uint64 { return binary.LittleEndian.Uint64(b.read(8)) }

func (b *binReader) i32() int32 { return int32(binary.LittleEndian.Uint32(b.read(4))) }

func (b *binReader) f64() float64 { return math.Float64frombits(b.u64()) }

func (b *binReader) cstring() string {
	if b.err != nil {
		return ""
	}
	s, err := b.r.ReadString(0)
	if err != nil {
		b.err = err
		return ""
	}
	return strings.TrimSuffix(s, "\x00")
}

func (b *binReader) skip(n int64) {
	if b.err != nil || n <= 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, b.r, n); err != nil {
		b.err = err
	}
}

func readImagesText(path string) ([]Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open images: %w", err)
	}
	defer f.Close()

	var images []Image
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	expectPose := true
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !expectPose {
			// Observation line following each pose; may be empty.
			expectPose = true
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			return nil, fmt.Errorf("%s:%d: expected 10 fields, got %d", path, lineNo, len(fields))
		}
		var img Image
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: image id: %w", path, lineNo, err)
		}
		img.ID = uint32(id)
		nums, err := parseFloats(fields[1:8])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: pose: %w", path, lineNo, err)
		}
		copy(img.Qvec[:], nums[:4])
		copy(img.Tvec[:], nums[4:])
		cam, err := strconv.ParseUint(fields[8], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: camera id: %w", path, lineNo, err)
		}
		img.CameraID = uint32(cam)
		img.Name = strings.Join(fields[9:], " ")
		images = append(images, img)
		expectPose = false
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return images, nil
}

func readPointsText(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open points: %w", err)
	}
	defer f.Close()

	var points []Point
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("%s:%d: expected at least 4 fields, got %d", path, lineNo, len(fields))
		}
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: point id: %w", path, lineNo, err)
		}
		xyz, err := parseFloats(fields[1:4])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: position: %w", path, lineNo, err)
		}
		points = append(points, Point{ID: id, Position: r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return points, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
