package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"adsplice/internal/config"
)

type recordedRequest struct {
	body     string
	title    string
	tags     string
	priority string
}

func newTestService(t *testing.T, mutate func(*config.Notifications)) (Service, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Analysis = true
	cfg.Notifications.Planning = true
	cfg.Notifications.Generation = true
	cfg.Notifications.Composition = true
	cfg.Notifications.Queue = true
	cfg.Notifications.Review = true
	cfg.Notifications.Errors = true
	cfg.Notifications.DedupWindowSeconds = 0
	if mutate != nil {
		mutate(&cfg.Notifications)
	}

	svc := NewService(&cfg)
	return svc, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func TestPublishSendsTitleAndTags(t *testing.T) {
	svc, requests := newTestService(t, nil)

	err := svc.Publish(context.Background(), EventPlanningComplete, Payload{
		"title":     "Morning Brew Review",
		"timestamp": 42.5,
		"tier":      "primary",
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].title != "Adsplice - Planned" {
		t.Fatalf("unexpected title %q", got[0].title)
	}
	if got[0].tags != "adsplice,plan,completed" {
		t.Fatalf("unexpected tags %q", got[0].tags)
	}
	if got[0].body != "Insertion planned: Morning Brew Review at 42.5s (primary)" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

func TestPublishSkipsDisabledCategory(t *testing.T) {
	svc, requests := newTestService(t, func(n *config.Notifications) {
		n.Analysis = false
	})

	if err := svc.Publish(context.Background(), EventAnalysisComplete, Payload{"title": "x"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if got := requests(); len(got) != 0 {
		t.Fatalf("expected no requests, got %d", len(got))
	}
}

func TestPublishErrorCarriesHighPriority(t *testing.T) {
	svc, requests := newTestService(t, nil)

	err := svc.Publish(context.Background(), EventError, Payload{
		"error":   errors.New("voice clone failed after 2 attempts"),
		"context": "generate My Video",
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("expected high priority, got %q", got[0].priority)
	}
	if got[0].body != "Error with generate My Video: voice clone failed after 2 attempts" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

func TestPublishDropsDuplicatesInsideWindow(t *testing.T) {
	svc, requests := newTestService(t, func(n *config.Notifications) {
		n.DedupWindowSeconds = 60
	})

	payload := Payload{"error": errors.New("disk full"), "context": "compose"}
	for range 3 {
		if err := svc.Publish(context.Background(), EventError, payload); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}
	if got := requests(); len(got) != 1 {
		t.Fatalf("expected duplicate suppression, got %d requests", len(got))
	}
}

func TestPublishAllowsRepeatAfterWindow(t *testing.T) {
	svc, requests := newTestService(t, func(n *config.Notifications) {
		n.DedupWindowSeconds = 60
	})

	ntfy, ok := svc.(*ntfyService)
	if !ok {
		t.Fatalf("expected ntfy-backed service, got %T", svc)
	}
	current := time.Now()
	ntfy.now = func() time.Time { return current }

	payload := Payload{"error": errors.New("disk full"), "context": "compose"}
	if err := ntfy.Publish(context.Background(), EventError, payload); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	current = current.Add(61 * time.Second)
	if err := ntfy.Publish(context.Background(), EventError, payload); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if got := requests(); len(got) != 2 {
		t.Fatalf("expected both sends after window expiry, got %d", len(got))
	}
}

func TestQueueCompletedReportsFailures(t *testing.T) {
	svc, requests := newTestService(t, nil)

	err := svc.Publish(context.Background(), EventQueueCompleted, Payload{
		"processed": 3,
		"failed":    1,
		"duration":  95 * time.Second,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].body != "Queue processing complete: 3 succeeded, 1 failed in 1m35s" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

func TestNewServiceWithoutTopicIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = "  "
	cfg.Notifications.Errors = true

	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.Publish(context.Background(), EventError, Payload{"error": errors.New("x")}); err != nil {
		t.Fatalf("noop Publish returned error: %v", err)
	}
}
