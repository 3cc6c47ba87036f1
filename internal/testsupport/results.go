package testsupport

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// ArtifactRelPath mirrors the results-tree artifact location.
const ArtifactRelPath = "alignments/test_to_train.npz"

// WriteResult creates <root>/<scene>/<modality>/<variant> with a placeholder
// artifact and a cfg.yml holding sidecar. It returns the artifact path.
func WriteResult(t testing.TB, root, scene, modality, variant, sidecar string) string {
	t.Helper()
	artifactPath := WriteResultWithoutSidecar(t, root, scene, modality, variant)
	writeFile(t, filepath.Join(root, scene, modality, variant, "cfg.yml"), []byte(sidecar))
	return artifactPath
}

// WriteResultWithoutSidecar creates a variant with an artifact but no cfg.yml.
func WriteResultWithoutSidecar(t testing.TB, root, scene, modality, variant string) string {
	t.Helper()
	artifactPath := filepath.Join(root, scene, modality, variant, filepath.FromSlash(ArtifactRelPath))
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(artifactPath), err)
	}
	writeFile(t, artifactPath, []byte("original artifact for "+scene+"/"+modality+"/"+variant))
	return artifactPath
}

// WriteSceneDatasets writes train and test COLMAP datasets for one scene under
// datasetRoot/<scene>/<modality>.
func WriteSceneDatasets(t testing.TB, datasetRoot, scene, modality string) {
	t.Helper()
	base := filepath.Join(datasetRoot, scene, modality)
	WriteColmapText(t, filepath.Join(base, "train"), RingImages(12, 4, 1.5), SlabPoints())
	WriteColmapText(t, filepath.Join(base, "test"), RingImages(5, 3.5, 1.2), SlabPoints())
}

// FileState is a snapshot of one file for before/after comparisons.
type FileState struct {
	Size    int64
	Mode    fs.FileMode
	ModTime int64
	Content string
}

// SnapshotTree records every file below root.
func SnapshotTree(t testing.TB, root string) map[string]FileState {
	t.Helper()
	state := make(map[string]FileState)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry := FileState{Mode: info.Mode(), ModTime: info.ModTime().UnixNano()}
		if !d.IsDir() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entry.Size = info.Size()
			entry.Content = string(data)
		}
		state[rel] = entry
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return state
}
