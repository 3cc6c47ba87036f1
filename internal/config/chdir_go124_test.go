//go:build go1.24

package config_test

import "testing"

func chdir(t *testing.T, dir string) {
	t.Helper()
	t.Chdir(dir)
}
