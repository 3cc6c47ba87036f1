// Package artifact reads and writes alignment artifacts: NumPy .npz bundles
// holding the alignment transform together with the two normalization
// transforms it was derived from.
package artifact
