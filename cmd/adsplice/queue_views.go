package main

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"adsplice/internal/ipc"
	"adsplice/internal/queue"
)

const displayTimeLayout = "2006-01-02 15:04"

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	for _, key := range slices.Sorted(maps.Keys(stats)) {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(stats[key])})
	}
	return rows
}

// buildQueueListRows orders items newest first; ties on creation time fall
// back to descending ID so freshly enqueued items stay on top.
func buildQueueListRows(items []ipc.QueueItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b ipc.QueueItem) int {
		ta, _ := parseQueueTime(a.CreatedAt)
		tb, _ := parseQueueTime(b.CreatedAt)
		if !ta.Equal(tb) {
			if ta.After(tb) {
				return -1
			}
			return 1
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			queueItemTitle(item),
			formatStatusLabel(item.Status),
			formatProgressCell(item),
			formatDisplayTime(item.CreatedAt),
		})
	}
	return rows
}

func queueItemTitle(item ipc.QueueItem) string {
	if title := strings.TrimSpace(item.VideoTitle); title != "" {
		return title
	}
	if source := strings.TrimSpace(item.SourcePath); source != "" {
		return filepath.Base(source)
	}
	return "Unknown"
}

func formatProgressCell(item ipc.QueueItem) string {
	stage := strings.TrimSpace(item.Progress.Stage)
	if stage == "" {
		return ""
	}
	if item.Progress.Percent > 0 {
		return fmt.Sprintf("%s (%.0f%%)", stage, item.Progress.Percent)
	}
	return stage
}

func formatStatusLabel(status string) string {
	return queue.Status(strings.TrimSpace(status)).Label()
}

func formatDisplayTime(value string) string {
	t, ok := parseQueueTime(value)
	if !ok {
		return strings.TrimSpace(value)
	}
	return t.UTC().Format(displayTimeLayout)
}

func parseQueueTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseItemID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}
