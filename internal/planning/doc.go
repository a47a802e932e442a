// Package planning implements the second workflow stage. It asks the
// model where an ad would land naturally, verifies those moments show
// the presenter's face, and commits a single insertion decision. When no
// candidate frame carries a face it falls back to the speaker profile's
// best frame. The stage also picks the advertisement for the video's
// theme and writes the spoken ad line.
package planning
