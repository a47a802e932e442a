package speaker

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"adsplice/internal/media"
)

type fakeFrames struct {
	samples []media.FrameSample
}

func (f *fakeFrames) ExtractFrames(_ context.Context, _ string, _, _ float64, _ int, _ string) ([]media.FrameSample, error) {
	return f.samples, nil
}

type fakeDetector struct {
	// faces keyed by frame path
	faces map[string][]Face
}

func (f *fakeDetector) Detect(_ context.Context, imagePath string) ([]Face, error) {
	return f.faces[imagePath], nil
}

func frameSamples(n int, interval float64) []media.FrameSample {
	samples := make([]media.FrameSample, n)
	for i := range samples {
		samples[i] = media.FrameSample{
			Path:      filepath.Join("frames", fmt.Sprintf("frame_%03d.jpg", i)),
			Timestamp: float64(i) * interval,
		}
	}
	return samples
}

func TestProfileRecognizesSingleSpeaker(t *testing.T) {
	samples := frameSamples(6, 5)
	detector := &fakeDetector{faces: map[string][]Face{}}
	// The same large centered face in 5 of 6 frames; frame 3 is the
	// largest and should win best-frame.
	for i, sample := range samples {
		if i == 5 {
			continue
		}
		size := 300
		if i == 3 {
			size = 360
		}
		detector.faces[sample.Path] = []Face{{X: 860, Y: 400, Width: size, Height: size}}
	}

	profiler := NewProfiler(&fakeFrames{samples: samples}, detector, nil)
	profile, err := profiler.Profile(context.Background(), "in.mp4", 30, 1920, 1080, t.TempDir())
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if !profile.SingleSpeaker {
		t.Fatalf("expected single speaker, got %+v", profile)
	}
	if profile.BestFrameTimestamp != 15 {
		t.Fatalf("expected best frame at 15s, got %v", profile.BestFrameTimestamp)
	}
	if profile.Confidence < 0.8 {
		t.Fatalf("expected high confidence, got %v", profile.Confidence)
	}
	if profile.FramesWithFaces != 5 {
		t.Fatalf("expected 5 frames with faces, got %d", profile.FramesWithFaces)
	}
}

func TestProfileRejectsRareFaces(t *testing.T) {
	samples := frameSamples(6, 5)
	detector := &fakeDetector{faces: map[string][]Face{
		samples[0].Path: {{X: 860, Y: 400, Width: 300, Height: 300}},
		samples[1].Path: {{X: 860, Y: 400, Width: 300, Height: 300}},
	}}

	profiler := NewProfiler(&fakeFrames{samples: samples}, detector, nil)
	profile, err := profiler.Profile(context.Background(), "in.mp4", 30, 1920, 1080, t.TempDir())
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.SingleSpeaker {
		t.Fatal("two face frames out of six must not qualify as a talking head")
	}
}

func TestProfileRejectsTinyFaces(t *testing.T) {
	samples := frameSamples(4, 5)
	detector := &fakeDetector{faces: map[string][]Face{}}
	for _, sample := range samples {
		detector.faces[sample.Path] = []Face{{X: 100, Y: 100, Width: 40, Height: 40}}
	}

	profiler := NewProfiler(&fakeFrames{samples: samples}, detector, nil)
	profile, err := profiler.Profile(context.Background(), "in.mp4", 20, 1920, 1080, t.TempDir())
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.SingleSpeaker {
		t.Fatal("a face under the size threshold must not qualify")
	}
}

func TestProfileSeparatesMovingFaces(t *testing.T) {
	samples := frameSamples(6, 5)
	detector := &fakeDetector{faces: map[string][]Face{}}
	// Face jumps across the frame every sample, so no cluster dominates.
	for i, sample := range samples {
		x := 100 + i*300
		detector.faces[sample.Path] = []Face{{X: x, Y: 100 + i*160, Width: 300, Height: 300}}
	}

	profiler := NewProfiler(&fakeFrames{samples: samples}, detector, nil)
	profile, err := profiler.Profile(context.Background(), "in.mp4", 30, 1920, 1080, t.TempDir())
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if profile.SingleSpeaker {
		t.Fatal("scattered detections must not qualify as one speaker")
	}
}

func TestParseFaceLines(t *testing.T) {
	faces, err := parseFaceLines("100 200 300 310\n\n50 60 70 80\n")
	if err != nil {
		t.Fatalf("parseFaceLines returned error: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0] != (Face{X: 100, Y: 200, Width: 300, Height: 310}) {
		t.Fatalf("unexpected face %+v", faces[0])
	}
	if _, err := parseFaceLines("not a face"); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestScoreFacesSaturates(t *testing.T) {
	if got := ScoreFaces(nil, 1920, 1080); got != 0 {
		t.Fatalf("expected 0 for no faces, got %v", got)
	}
	// 576x576 in a 1920x1080 frame is ~16% of the frame, past the 10%
	// saturation point.
	if got := ScoreFaces([]Face{{Width: 576, Height: 576}}, 1920, 1080); got != 1.0 {
		t.Fatalf("expected saturated score, got %v", got)
	}
	small := ScoreFaces([]Face{{Width: 100, Height: 100}}, 1920, 1080)
	if small <= 0 || small >= 0.1 {
		t.Fatalf("expected small face score in (0, 0.1), got %v", small)
	}
}
