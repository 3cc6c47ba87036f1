// Package discovery walks a results tree for existing alignment artifacts and
// recovers the held-out cadence each one was produced with.
//
// Layout: <root>/<scene>/<modality>/<variant>/alignments/test_to_train.npz
// with a cfg.yml sidecar in the variant directory. Discovery never writes.
package discovery
