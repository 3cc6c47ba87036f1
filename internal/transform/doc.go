// Package transform provides the 4×4 homogeneous transform used for camera
// normalization and dataset alignment.
//
// Transforms are plain row-major arrays so they copy by value and compare
// with ==; the heavier linear algebra (products, inverses, determinants) is
// delegated to gonum. Inverse reports ErrSingularTransform instead of handing
// back a numerically meaningless matrix, which lets callers refuse to persist
// an alignment built on a degenerate normalization.
package transform
