// Package analysis implements the first workflow stage. It probes the
// source video, enforces the accepted duration range, extracts a mono
// audio track, transcribes it, and clips a continuous-speech voice
// sample for cloning. Planning consumes the transcript and the sample.
package analysis
