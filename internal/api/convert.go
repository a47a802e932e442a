package api

import (
	"maps"
	"slices"

	"adsplice/internal/queue"
	"adsplice/internal/workflow"
)

// FromQueueItem converts a queue item into its wire representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:         item.ID,
		VideoTitle: item.VideoTitle,
		SourcePath: item.SourcePath,
		Status:     string(item.Status),
		Progress: QueueProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage:    item.ErrorMessage,
		DurationSeconds: item.DurationSeconds,
		VideoTheme:      item.VideoTheme,
		InsertionJSON:   item.InsertionJSON,
		AdVideoPath:     item.AdVideoPath,
		FinalFile:       item.FinalFile,
		NeedsReview:     item.NeedsReview,
		ReviewReason:    item.ReviewReason,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromQueueItems converts a slice of queue items.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to its API payload.
// Stage health is emitted in name order so consumers see stable output.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	health := make([]StageHealth, 0, len(summary.StageHealth))
	for _, name := range slices.Sorted(maps.Keys(summary.StageHealth)) {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}

	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  stats,
		StageHealth: health,
		LastError:   summary.LastError,
	}
	if summary.LastItem != nil {
		item := FromQueueItem(summary.LastItem)
		wf.LastItem = &item
	}
	return wf
}
