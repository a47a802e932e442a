package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"adsplice/internal/queue"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewVideoInfersTitle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewVideo(ctx, "/videos/cooking_demo.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", item.Status)
	}
	if item.VideoTitle != "cooking demo" {
		t.Fatalf("expected inferred title, got %q", item.VideoTitle)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewVideo(ctx, "/videos/input.mp4", "Input")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}

	item.Status = queue.StatusAnalyzed
	item.DurationSeconds = 92.5
	item.TranscriptPath = "/staging/1/transcript.json"
	item.AdScript = "Try our new product today"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != queue.StatusAnalyzed {
		t.Fatalf("expected analyzed, got %s", fetched.Status)
	}
	if fetched.DurationSeconds != 92.5 {
		t.Fatalf("expected duration 92.5, got %v", fetched.DurationSeconds)
	}
	if fetched.TranscriptPath != item.TranscriptPath {
		t.Fatalf("transcript path mismatch: %q", fetched.TranscriptPath)
	}
	if fetched.AdScript != item.AdScript {
		t.Fatalf("ad script mismatch: %q", fetched.AdScript)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.NewVideo(ctx, "/videos/a.mp4", "A")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	if _, err := store.NewVideo(ctx, "/videos/b.mp4", "B"); err != nil {
		t.Fatalf("new video: %v", err)
	}

	next, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest item %d, got %+v", first.ID, next)
	}

	none, err := store.NextForStatuses(ctx, queue.StatusGenerating)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no generating items, got %+v", none)
	}
}

func TestRetryFailedResurrectsReviewItems(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewVideo(ctx, "/videos/a.mp4", "A")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	item.SetReview("no insertion point found")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	affected, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 retried item, got %d", affected)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", fetched.Status)
	}
	if fetched.NeedsReview {
		t.Fatal("expected review flag cleared")
	}
}

func TestReclaimStaleProcessingRollsBack(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewVideo(ctx, "/videos/a.mp4", "A")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	stale := time.Now().UTC().Add(-time.Hour)
	item.Status = queue.StatusGenerating
	item.LastHeartbeat = &stale
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	affected, err := store.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 reclaimed item, got %d", affected)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != queue.StatusPlanned {
		t.Fatalf("expected rollback to planned, got %s", fetched.Status)
	}
}

func TestHealthCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, status := range []queue.Status{queue.StatusPending, queue.StatusComposing, queue.StatusFailed, queue.StatusCompleted} {
		item, err := store.NewVideo(ctx, "/videos/"+string(status)+".mp4", string(status))
		if err != nil {
			t.Fatalf("new video: %v", err)
		}
		item.Status = status
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 || health.Failed != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}
