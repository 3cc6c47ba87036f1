// Package preflight provides readiness checks run before realign touches any
// record: directory access for the results, dataset and state roots, and
// availability of the configured normalizer.
//
// A failing check stops the command before the first record is processed.
package preflight
