package comfy

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AssetKind identifies the media class of an uploaded or generated asset.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetAudio AssetKind = "audio"
	AssetVideo AssetKind = "video"
)

// uploadEndpoint returns the executor upload route and multipart field name
// for the kind. The executor only distinguishes image and audio uploads.
func (k AssetKind) uploadEndpoint() (route, field string) {
	if k == AssetAudio {
		return "audio", "audio"
	}
	return "image", "image"
}

// KindForPath infers the asset kind from a file extension.
func KindForPath(path string) AssetKind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "wav", "mp3", "flac", "m4a", "aac", "ogg":
		return AssetAudio
	case "mp4", "mov", "mkv", "webm", "avi":
		return AssetVideo
	default:
		return AssetImage
	}
}

// AssetRef locates a file in the executor's asset store.
type AssetRef struct {
	Name      string
	Subfolder string
	Kind      AssetKind
}

// JobState describes where a submitted job sits in its lifecycle.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// JobStatus is a point-in-time observation of a remote job.
type JobStatus struct {
	State JobState
	// Outputs groups generated assets by the executor's output label
	// ("images", "audio", "gifs"), keyed per producing node.
	Outputs map[string][]AssetRef
	// Messages carries the executor's failure detail when State is failed.
	Messages []string
}

// JobRequest is a fully bound job graph ready for submission.
type JobRequest struct {
	Graph         Graph
	CorrelationID string
}

// JobHandle identifies a submitted job. Once a poll observes a terminal
// status the handle caches it, so later polls can never regress an
// already-final observation.
type JobHandle struct {
	ID          string
	SubmittedAt time.Time

	mu       sync.Mutex
	terminal *JobStatus
}

func (h *JobHandle) cachedTerminal() (JobStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal == nil {
		return JobStatus{}, false
	}
	return *h.terminal, true
}

func (h *JobHandle) recordTerminal(status JobStatus) {
	if !status.State.Terminal() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal == nil {
		copied := status
		h.terminal = &copied
	}
}
