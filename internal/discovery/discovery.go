package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"realign/internal/logging"
)

const (
	// ArtifactRelPath is the artifact location relative to a variant directory.
	ArtifactRelPath = "alignments/test_to_train.npz"
	// SidecarName is the run configuration file inside a variant directory.
	SidecarName = "cfg.yml"
	// DefaultCadence applies when the sidecar has no usable test_every.
	DefaultCadence = 8

	cadenceKey = "test_every"
)

// Record identifies one existing alignment artifact and its parameters.
type Record struct {
	Scene        string
	Modality     string
	Variant      string
	Cadence      int
	ArtifactPath string
	// CadenceDefaulted is true when the sidecar had no usable test_every.
	CadenceDefaulted bool
}

// Label renders scene/modality/variant.
func (r Record) Label() string {
	return r.Scene + "/" + r.Modality + "/" + r.Variant
}

// Warning describes an artifact that was skipped.
type Warning struct {
	Scene    string
	Modality string
	Variant  string
	Path     string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s/%s/%s: %s (%s)", w.Scene, w.Modality, w.Variant, w.Reason, w.Path)
}

// Result is the outcome of one discovery pass.
type Result struct {
	Records  []Record
	Warnings []Warning
}

// Option configures Discover.
type Option func(*options)

type options struct {
	logger *slog.Logger
	fsys   fs.FS
}

// WithLogger routes skip warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFS reads the tree from fsys instead of the operating system. Paths in
// records are still reported under root.
func WithFS(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// Discover finds every artifact under root for the requested modalities. An
// unreadable root is an error; problems below it become warnings.
func Discover(root string, modalities []string, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.NewComponentLogger(o.logger, "discovery")
	fsys := o.fsys
	if fsys == nil {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("results directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("results directory %s is not a directory", root)
		}
		fsys = os.DirFS(root)
	}

	scenes, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read results directory %s: %w", root, err)
	}

	result := &Result{}
	seen := make(map[string]struct{})
	for _, scene := range scenes {
		if !isDir(fsys, scene) {
			continue
		}
		for _, modality := range modalities {
			modalityDir := path.Join(scene.Name(), modality)
			variants, err := fs.ReadDir(fsys, modalityDir)
			if err != nil {
				continue
			}
			for _, variant := range variants {
				if !isDir(fsys, variant, modalityDir) {
					continue
				}
				variantDir := path.Join(modalityDir, variant.Name())
				if !isFile(fsys, path.Join(variantDir, ArtifactRelPath)) {
					continue
				}

				key := variantDir
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				sidecar := path.Join(variantDir, SidecarName)
				data, err := fs.ReadFile(fsys, sidecar)
				if err != nil {
					reason := "sidecar missing, skipping"
					if !errors.Is(err, fs.ErrNotExist) {
						reason = "sidecar unreadable, skipping: " + err.Error()
					}
					w := Warning{
						Scene:    scene.Name(),
						Modality: modality,
						Variant:  variant.Name(),
						Path:     filepath.Join(root, filepath.FromSlash(sidecar)),
						Reason:   reason,
					}
					result.Warnings = append(result.Warnings, w)
					logging.WarnWithContext(logger, "alignment skipped", "sidecar_missing",
						append(logging.RecordAttrs(w.Scene, w.Modality, w.Variant),
							logging.String("reason", w.Reason),
							logging.String("sidecar_path", w.Path),
						)...,
					)
					continue
				}

				cadence, found := ExtractCadenceOK(string(data))
				result.Records = append(result.Records, Record{
					Scene:            scene.Name(),
					Modality:         modality,
					Variant:          variant.Name(),
					Cadence:          cadence,
					ArtifactPath:     filepath.Join(root, filepath.FromSlash(path.Join(variantDir, ArtifactRelPath))),
					CadenceDefaulted: !found,
				})
			}
		}
	}

	logger.Debug("discovery complete",
		logging.String(logging.FieldEventType, "discovery_complete"),
		logging.String("results_dir", root),
		logging.Int("records", len(result.Records)),
		logging.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// isDir follows symlinks, since results trees are often assembled from links.
func isDir(fsys fs.FS, entry fs.DirEntry, parent ...string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := fs.Stat(fsys, path.Join(append(parent, entry.Name())...))
	return err == nil && info.IsDir()
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

// ExtractCadence returns the held-out cadence declared in sidecar text, or
// DefaultCadence.
func ExtractCadence(text string) int {
	cadence, _ := ExtractCadenceOK(text)
	return cadence
}

// ExtractCadenceOK is ExtractCadence that also reports whether a value was
// found. The first line starting with "test_every:" whose value parses as an
// integer of at least 1 wins; other lines, including malformed test_every
// lines, are ignored. The sidecar is not parsed as YAML.
func ExtractCadenceOK(text string) (int, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, cadenceKey+":") {
			continue
		}
		value := strings.TrimPrefix(line, cadenceKey+":")
		if idx := strings.IndexByte(value, ':'); idx >= 0 {
			value = value[:idx]
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 {
			continue
		}
		return n, true
	}
	return DefaultCadence, false
}

// FilterScenes keeps records whose scene is listed. An empty list keeps all.
func FilterScenes(records []Record, scenes []string) []Record {
	if len(scenes) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if slices.Contains(scenes, r.Scene) {
			out = append(out, r)
		}
	}
	return out
}
