// Package asr transcribes the source video's audio with the whisper CLI
// and exposes the timed segments the planning stage reasons over.
package asr
