// Package colmap reads the sparse reconstruction a posed-image dataset ships
// with: registered image poses and triangulated points, from either the
// binary (images.bin, points3D.bin) or text (images.txt, points3D.txt)
// encodings.
//
// Only the fields normalization needs are decoded; 2D observations, colors
// and tracks are skipped. Images are returned sorted by file name so held-out
// cadences select the same poses as the training pipeline does.
package colmap
