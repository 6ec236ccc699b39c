// Package journal keeps a SQLite history of stage cache activity.
//
// Every reuse decision, recorded manifest and failed execution the stage
// runner observes is appended as one row. The journal is an audit trail only:
// reuse decisions never read from it, and losing it never invalidates a
// cached stage.
package journal
