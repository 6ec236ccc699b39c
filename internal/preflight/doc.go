// Package preflight provides readiness checks for the filesystem paths and
// object storage that stage runs depend on.
//
// These checks run in two contexts:
//   - The CLI "manifest check" and "manifest record" commands call
//     CheckOutputLocation before touching a stage output directory.
//   - The CLI "config show" command uses RunAll to display readiness.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
