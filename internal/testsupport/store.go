package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"adsplice/internal/config"
	"adsplice/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	if err := os.MkdirAll(cfg.Paths.StagingDir, 0o755); err != nil {
		t.Fatalf("mkdir staging dir: %v", err)
	}
	store, err := queue.Open(filepath.Join(cfg.Paths.StagingDir, "queue.db"))
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewVideo creates a new queue item for tests using the provided store.
func NewVideo(t testing.TB, store *queue.Store, sourcePath, title string) *queue.Item {
	t.Helper()

	item, err := store.NewVideo(context.Background(), sourcePath, title)
	if err != nil {
		t.Fatalf("store.NewVideo: %v", err)
	}
	return item
}
