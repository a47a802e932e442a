// Package speaker decides whether a video is a single-speaker talking
// head and, when it is, which sampled frame shows the speaker best.
//
// Detection runs at an interface boundary: the default CLIDetector
// shells out to a facedetect-style binary, and tests inject their own
// Detector. Profiling clusters the largest face per sampled frame by
// normalized position and size, then accepts the dominant cluster as
// the speaker when it appears often enough and large enough.
package speaker
