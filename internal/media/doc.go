// Package media wraps ffmpeg and ffprobe for the pipeline's local media
// work: probing source metadata, cutting audio tracks and clips, and
// sampling still frames for face scoring.
package media
