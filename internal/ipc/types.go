package ipc

import "adsplice/internal/api"

// The queue DTOs are shared with the HTTP status API so both surfaces
// describe items identically.
type (
	QueueItem        = api.QueueItem
	StageHealth      = api.StageHealth
	DependencyStatus = api.DependencyStatus
)

// Requests that carry no parameters.
type (
	StartRequest               struct{}
	StopRequest                struct{}
	StatusRequest              struct{}
	QueueClearRequest          struct{}
	QueueClearCompletedRequest struct{}
	QueueResetRequest          struct{}
	QueueHealthRequest         struct{}
	TestNotificationRequest    struct{}
)

// StartResponse reports whether the workflow came up, with the reason
// when it did not.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusResponse is the full daemon snapshot: process identity, queue
// counts keyed by status name, per-stage readiness, and external tool
// availability.
type StatusResponse struct {
	Running      bool               `json:"running"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error"`
	LastItem     *QueueItem         `json:"last_item"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	PID          int                `json:"pid"`
}

// AddVideoRequest enqueues one source video by absolute path.
type AddVideoRequest struct {
	Path string `json:"path"`
}

type AddVideoResponse struct {
	Item QueueItem `json:"item"`
}

// QueueListRequest filters the listing; no statuses means everything.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

type QueueDescribeResponse struct {
	Item QueueItem `json:"item"`
}

type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRetryRequest re-queues the named items; an empty list means every
// failed or review item.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// LogTailRequest reads daemon log lines. Offset -1 requests the last
// Limit lines; Follow with WaitMillis > 0 blocks for new output.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// QueueHealthResponse aggregates item counts by disposition.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
}
