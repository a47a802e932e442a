// Package composition assembles the final video: the source split at
// the committed insertion point with the generated ad spliced between
// the halves, all via ffmpeg.
package composition
