// Command realign computes and regenerates dataset alignment transforms.
//
// compute derives one test-to-train alignment from two dataset directories.
// regenerate walks a results tree, recovers each artifact's held-out cadence
// from its cfg.yml, and recomputes every artifact in place with backups, a
// dry-run mode, and a per-record summary. scan, verify, history, deps, and
// config are supporting views over the same pieces.
package main
