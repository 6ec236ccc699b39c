package preflight

import (
	"context"
	"log/slog"
	"path/filepath"

	"audiopipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config and
// the output directories a caller intends to write.
func RunAll(ctx context.Context, cfg *config.Config, outputDirs []string, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if cfg.Paths.LogDir != "" {
		results = append(results, CheckOutputLocation("Log directory", cfg.Paths.LogDir))
	}

	if cfg.Journal.Enabled && cfg.Journal.Path != "" {
		results = append(results, CheckOutputLocation("Journal directory", filepath.Dir(cfg.Journal.Path)))
	}

	for _, dir := range outputDirs {
		results = append(results, CheckOutputLocation("Output directory", dir))
	}

	if cfg.ObjectStore.Enabled {
		results = append(results, CheckObjectStore(ctx, cfg.ObjectStore, logger))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
