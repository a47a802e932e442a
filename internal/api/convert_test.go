package api

import (
	"testing"
	"time"

	"adsplice/internal/queue"
	"adsplice/internal/stage"
	"adsplice/internal/workflow"
)

func TestFromQueueItem(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	item := &queue.Item{
		ID:              7,
		VideoTitle:      "Morning Brew Review",
		SourcePath:      "/videos/morning brew review.mp4",
		Status:          queue.StatusGenerating,
		ProgressStage:   "Generating ad assets",
		ProgressPercent: 40,
		CreatedAt:       created,
		VideoTheme:      "coffee",
	}

	dto := FromQueueItem(item)
	if dto.ID != 7 || dto.VideoTitle != "Morning Brew Review" {
		t.Fatalf("unexpected identity fields: %+v", dto)
	}
	if dto.Status != "generating" {
		t.Fatalf("expected status generating, got %q", dto.Status)
	}
	if dto.Progress.Stage != "Generating ad assets" || dto.Progress.Percent != 40 {
		t.Fatalf("unexpected progress: %+v", dto.Progress)
	}
	if dto.CreatedAt == "" {
		t.Fatal("expected created timestamp to be set")
	}
}

func TestFromQueueItemNil(t *testing.T) {
	dto := FromQueueItem(nil)
	if dto.ID != 0 || dto.Status != "" {
		t.Fatalf("expected zero value, got %+v", dto)
	}
}

func TestFromStatusSummarySortsStageHealth(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		QueueStats: map[queue.Status]int{
			queue.StatusPending: 2,
		},
		StageHealth: map[string]stage.Health{
			"splicer":  stage.Healthy("splicer"),
			"analyzer": stage.Unhealthy("analyzer", "ffprobe missing"),
		},
	}

	wf := FromStatusSummary(summary)
	if !wf.Running {
		t.Fatal("expected running workflow")
	}
	if wf.QueueStats["pending"] != 2 {
		t.Fatalf("unexpected queue stats: %+v", wf.QueueStats)
	}
	if len(wf.StageHealth) != 2 {
		t.Fatalf("expected 2 health entries, got %d", len(wf.StageHealth))
	}
	if wf.StageHealth[0].Name != "analyzer" || wf.StageHealth[1].Name != "splicer" {
		t.Fatalf("expected sorted health names, got %+v", wf.StageHealth)
	}
	if wf.StageHealth[0].Ready || wf.StageHealth[0].Detail != "ffprobe missing" {
		t.Fatalf("unexpected analyzer health: %+v", wf.StageHealth[0])
	}
}
