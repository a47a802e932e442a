package composition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adsplice/internal/services"
)

func composeFixtures(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	ad := filepath.Join(dir, "ad.mp4")
	for _, path := range []string{source, ad} {
		if err := os.WriteFile(path, []byte("fixture"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	return source, ad, filepath.Join(dir, "out", "final.mp4")
}

func TestInsertAdEncodesThreeSegmentsThenJoins(t *testing.T) {
	source, ad, output := composeFixtures(t)

	composer := NewComposer("ffmpeg", nil)
	var calls [][]string
	composer.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		calls = append(calls, args)
		return nil
	})

	err := composer.InsertAd(context.Background(), Request{
		SourcePath:    source,
		AdPath:        ad,
		InsertionTime: 42.5,
		OutputPath:    output,
		Width:         1080,
		Height:        1920,
		FPS:           30,
	})
	if err != nil {
		t.Fatalf("InsertAd returned error: %v", err)
	}
	if len(calls) != 4 {
		t.Fatalf("expected 3 encodes + 1 concat, got %d calls", len(calls))
	}

	head := strings.Join(calls[0], " ")
	if !strings.Contains(head, "-to 42.500") || strings.Contains(head, "-ss ") {
		t.Fatalf("head segment must stop at the insertion time, got %q", head)
	}
	if !strings.Contains(head, "scale=1080:1920") || !strings.Contains(head, "fps=30") {
		t.Fatalf("head segment must normalize dimensions, got %q", head)
	}

	adArgs := strings.Join(calls[1], " ")
	if !strings.Contains(adArgs, ad) {
		t.Fatalf("second encode must consume the ad video, got %q", adArgs)
	}

	tail := strings.Join(calls[2], " ")
	if !strings.Contains(tail, "-ss 42.500") {
		t.Fatalf("tail segment must start at the insertion time, got %q", tail)
	}

	concat := strings.Join(calls[3], " ")
	if !strings.Contains(concat, "-f concat") || !strings.Contains(concat, "-c copy") || !strings.Contains(concat, output) {
		t.Fatalf("final join must stream-copy the concat list, got %q", concat)
	}
}

func TestInsertAdConcatOrderIsHeadAdTail(t *testing.T) {
	source, ad, output := composeFixtures(t)

	composer := NewComposer("ffmpeg", nil)
	var listContent string
	composer.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		for i, arg := range args {
			if arg == "-i" && strings.HasSuffix(args[i+1], "concat.txt") {
				data, err := os.ReadFile(args[i+1])
				if err != nil {
					t.Fatalf("read concat list: %v", err)
				}
				listContent = string(data)
			}
		}
		return nil
	})

	err := composer.InsertAd(context.Background(), Request{
		SourcePath:    source,
		AdPath:        ad,
		InsertionTime: 10,
		OutputPath:    output,
		Width:         1080,
		Height:        1920,
		FPS:           25,
	})
	if err != nil {
		t.Fatalf("InsertAd returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(listContent), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 concat entries, got %v", lines)
	}
	for i, want := range []string{"part_head.mp4", "part_ad.mp4", "part_tail.mp4"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("expected %s at position %d, got %v", want, i, lines)
		}
	}
}

func TestInsertAdValidatesInputs(t *testing.T) {
	source, ad, output := composeFixtures(t)
	composer := NewComposer("ffmpeg", nil)
	composer.WithCommandRunner(func(_ context.Context, _ string, _ ...string) error { return nil })

	base := Request{SourcePath: source, AdPath: ad, OutputPath: output, Width: 1080, Height: 1920, FPS: 30}

	req := base
	req.InsertionTime = 0
	if err := composer.InsertAd(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero insertion time, got %v", err)
	}

	req = base
	req.InsertionTime = 10
	req.AdPath = filepath.Join(t.TempDir(), "missing.mp4")
	if err := composer.InsertAd(context.Background(), req); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing ad, got %v", err)
	}

	req = base
	req.InsertionTime = 10
	req.FPS = 0
	if err := composer.InsertAd(context.Background(), req); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing fps, got %v", err)
	}
}
