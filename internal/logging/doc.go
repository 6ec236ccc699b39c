// Package logging assembles structured slog loggers and formatting helpers used
// across the audiopipe stage cache and CLI.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so stage code can tag log lines with the stage
// name, session identifier, and run correlation ID. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so cache decisions are
// emitted with the same decision_type/decision_result/decision_reason shape
// everywhere.
package logging
