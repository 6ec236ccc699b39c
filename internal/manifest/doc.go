// Package manifest records and checks the identity under which a pipeline
// stage last produced its outputs.
//
// A Manifest captures the stage name, session identifier, the redacted config
// digest, the sorted fingerprints of every input file, and free-form extra
// identity such as a model checkpoint version. Before a stage runs the
// orchestrator builds the expected manifest and asks a Decider whether the
// recorded one still matches; after a successful run, and only after every
// output has been written, it persists the expected manifest through a Store.
//
// The Decider is conservative: any missing required output, any
// absent or unreadable manifest, and any field difference forces the stage to
// recompute. It cannot detect outputs corrupted in place.
//
// At most one writer may touch a given output directory at a time; see
// package stagelock for a helper that enforces this.
package manifest
