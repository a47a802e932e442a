// Package logs reads daemon log files for the CLI and IPC surfaces.
//
// Tail returns a window of lines plus the byte offset callers hand back to
// resume where they left off, which is how `adsplice show --follow` streams
// new lines as the daemon writes them. Reads are line-scoped, so a growing
// file never has to fit in memory.
package logs
