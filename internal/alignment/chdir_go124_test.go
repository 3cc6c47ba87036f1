//go:build go1.24

package alignment

import "testing"

func chdir(t *testing.T, dir string) {
	t.Helper()
	t.Chdir(dir)
}
