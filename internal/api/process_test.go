package api_test

import (
	"context"
	"path/filepath"
	"testing"

	"adsplice/internal/api"
	"adsplice/internal/logging"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/testsupport"
)

type recordingHandler struct {
	name       string
	order      *[]string
	prepareErr error
	executeErr error
	onExecute  func(*queue.Item)
}

func (h *recordingHandler) Prepare(ctx context.Context, item *queue.Item) error {
	return h.prepareErr
}

func (h *recordingHandler) Execute(ctx context.Context, item *queue.Item) error {
	*h.order = append(*h.order, h.name)
	if h.onExecute != nil {
		h.onExecute(item)
	}
	return h.executeErr
}

func TestProcessFileRunsAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var order []string
	stages := &api.ProcessStages{
		Analyzer:  &recordingHandler{name: "analyzer", order: &order},
		Planner:   &recordingHandler{name: "planner", order: &order},
		Generator: &recordingHandler{name: "generator", order: &order},
		Splicer: &recordingHandler{name: "splicer", order: &order, onExecute: func(item *queue.Item) {
			item.FinalFile = "/output/demo.mp4"
		}},
	}

	result, err := api.ProcessFile(context.Background(), api.ProcessRequest{
		Config:     cfg,
		Logger:     logging.NewNop(),
		SourcePath: "/videos/demo.mp4",
		Stages:     stages,
	})
	if err != nil {
		t.Fatalf("ProcessFile returned error: %v", err)
	}

	want := []string{"analyzer", "planner", "generator", "splicer"}
	if len(order) != len(want) {
		t.Fatalf("stage order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("stage order %v, want %v", order, want)
		}
	}
	if result.Outcome != "completed" {
		t.Fatalf("outcome %q, want completed (%s)", result.Outcome, result.OutcomeMessage)
	}
	if result.Item.Status != queue.StatusCompleted {
		t.Fatalf("item status %s, want completed", result.Item.Status)
	}
}

func TestProcessFileStopsOnReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var order []string
	reviewErr := services.Wrap(services.ErrValidation, "planner", "plan", "No suitable insertion point", nil)
	stages := &api.ProcessStages{
		Analyzer:  &recordingHandler{name: "analyzer", order: &order},
		Planner:   &recordingHandler{name: "planner", order: &order, executeErr: reviewErr},
		Generator: &recordingHandler{name: "generator", order: &order},
		Splicer:   &recordingHandler{name: "splicer", order: &order},
	}

	result, err := api.ProcessFile(context.Background(), api.ProcessRequest{
		Config:     cfg,
		Logger:     logging.NewNop(),
		SourcePath: "/videos/demo.mp4",
		Stages:     stages,
	})
	if err != nil {
		t.Fatalf("ProcessFile returned error: %v", err)
	}
	if result.Outcome != "review" {
		t.Fatalf("outcome %q, want review (%s)", result.Outcome, result.OutcomeMessage)
	}
	for _, name := range order {
		if name == "generator" || name == "splicer" {
			t.Fatalf("stage %s ran after review stop: %v", name, order)
		}
	}
	if !result.Item.NeedsReview {
		t.Fatal("expected review flag on item")
	}
}

func TestProcessFileRejectsInFlightItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(filepath.Join(cfg.Paths.StagingDir, "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	item, err := store.NewVideo(context.Background(), "/videos/busy.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	item.Status = queue.StatusGenerating
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	_, err = api.ProcessFile(context.Background(), api.ProcessRequest{
		Config:     cfg,
		Logger:     logging.NewNop(),
		SourcePath: "/videos/busy.mp4",
		Stages:     &api.ProcessStages{},
	})
	if err == nil {
		t.Fatal("expected error for in-flight item")
	}
}

func TestProcessFileResumesExistingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(filepath.Join(cfg.Paths.StagingDir, "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	item, err := store.NewVideo(context.Background(), "/videos/half.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	item.Status = queue.StatusPlanned
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	var order []string
	result, err := api.ProcessFile(context.Background(), api.ProcessRequest{
		Config:     cfg,
		Logger:     logging.NewNop(),
		SourcePath: "/videos/half.mp4",
		Stages: &api.ProcessStages{
			Analyzer:  &recordingHandler{name: "analyzer", order: &order},
			Planner:   &recordingHandler{name: "planner", order: &order},
			Generator: &recordingHandler{name: "generator", order: &order},
			Splicer:   &recordingHandler{name: "splicer", order: &order},
		},
	})
	if err != nil {
		t.Fatalf("ProcessFile returned error: %v", err)
	}
	want := []string{"generator", "splicer"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("stage order %v, want %v", order, want)
	}
	if result.Item.ID != item.ID {
		t.Fatalf("expected resumed item #%d, got #%d", item.ID, result.Item.ID)
	}
}
