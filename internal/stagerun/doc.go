// Package stagerun executes a pipeline stage behind the manifest cache.
//
// Runner.Run locks the output directory, builds the expected manifest, asks
// the decider whether the recorded outputs can be reused, and only runs the
// stage when they cannot. After a successful run every required output is
// verified before the manifest is written, so a crash or failure never leaves
// a manifest vouching for incomplete outputs.
//
// When a Journal is configured every decision, recorded manifest and failure
// is appended to it for later inspection with "audiopipe history".
package stagerun
