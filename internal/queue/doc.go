// Package queue persists pipeline items in SQLite and exposes the status
// state machine the workflow manager drives videos through.
package queue
