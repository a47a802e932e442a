// Package insertion commits a single ad insertion point for a video.
//
// The selector evaluates three tiers in order: face-scored candidates
// ranked by a weighted combination of semantic preference and face
// quality, then the speaker profile's best frame when no face scores
// exist, then a terminal ErrNoInsertionPoint. The pipeline never guesses
// a timestamp.
package insertion
