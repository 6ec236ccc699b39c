// Package main hosts the audiopipe CLI entrypoint and command graph.
//
// The Cobra-based command tree exposes the stage cache to shell pipelines:
// fingerprinting inputs, digesting stage configurations, inspecting, checking
// and recording manifests, running a command behind the cache, browsing the
// stage history and configuration scaffolding. It centralizes configuration
// resolution, logger construction and metrics export so subcommands only
// describe the stage.
package main
