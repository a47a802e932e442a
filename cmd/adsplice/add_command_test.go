package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveSourceFile(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := resolveSourceFile(video)
	if err != nil {
		t.Fatalf("resolveSourceFile: %v", err)
	}
	if got != video {
		t.Fatalf("expected %q, got %q", video, got)
	}

	cases := []struct {
		name string
		arg  string
		want string
	}{
		{"missing", filepath.Join(dir, "absent.mp4"), "file does not exist"},
		{"directory", dir, "is a directory"},
		{"extension", text, "unsupported file extension"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := resolveSourceFile(tc.arg); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}
