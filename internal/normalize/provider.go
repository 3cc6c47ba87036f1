package normalize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"realign/internal/transform"
)

var (
	// ErrDatasetNotFound reports a dataset directory that is missing or holds
	// no usable reconstruction.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrMalformedPoses reports pose or point data that cannot be normalized.
	ErrMalformedPoses = errors.New("malformed pose data")
	// ErrInvalidCadence reports a held-out cadence below 1.
	ErrInvalidCadence = errors.New("invalid held-out cadence")
	// ErrCommandFailed reports a failing external normalizer invocation.
	ErrCommandFailed = errors.New("normalizer command failed")
)

// Provider derives the normalization transform of one dataset directory.
// Implementations must be deterministic for a fixed directory and cadence.
type Provider interface {
	Normalize(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error)

// Normalize calls f.
func (f ProviderFunc) Normalize(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error) {
	return f(ctx, datasetDir, cadence)
}

// ValidateCadence rejects cadences below 1.
func ValidateCadence(cadence int) error {
	if cadence < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidCadence, cadence)
	}
	return nil
}

// RetainedIndices returns the pose indices kept for normalization when every
// cadence-th pose (starting at index 0) is held out. When the cadence would
// hold out everything, all indices are retained.
func RetainedIndices(n, cadence int) []int {
	keep := make([]int, 0, n)
	if cadence > 1 {
		for i := 0; i < n; i++ {
			if i%cadence != 0 {
				keep = append(keep, i)
			}
		}
	}
	if len(keep) == 0 {
		for i := 0; i < n; i++ {
			keep = append(keep, i)
		}
	}
	return keep
}

type cacheKey struct {
	dir     string
	cadence int
}

type cacheEntry struct {
	value transform.Transform
	err   error
}

// CachedProvider memoizes a deterministic provider per directory and cadence.
// It is not safe for concurrent use.
type CachedProvider struct {
	inner   Provider
	entries map[cacheKey]cacheEntry
	hits    int
}

// Cached wraps inner with a memoizing layer.
func Cached(inner Provider) *CachedProvider {
	return &CachedProvider{inner: inner, entries: make(map[cacheKey]cacheEntry)}
}

// Normalize returns the cached result for the directory and cadence, calling
// the wrapped provider on first use. Failures are cached too, except context
// cancellation which says nothing about the dataset.
func (c *CachedProvider) Normalize(ctx context.Context, datasetDir string, cadence int) (transform.Transform, error) {
	key := cacheKey{dir: datasetDir, cadence: cadence}
	if abs, err := filepath.Abs(datasetDir); err == nil {
		key.dir = abs
	}
	if entry, ok := c.entries[key]; ok {
		c.hits++
		return entry.value, entry.err
	}
	value, err := c.inner.Normalize(ctx, datasetDir, cadence)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return value, err
	}
	c.entries[key] = cacheEntry{value: value, err: err}
	return value, err
}

// Hits returns how many calls were served from the cache.
func (c *CachedProvider) Hits() int {
	return c.hits
}
