package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"adsplice/internal/generation"
	"adsplice/internal/services"
	"adsplice/internal/services/comfy"
)

func writeTemplate(t *testing.T, dir, name string, nodes map[string]map[string]any) *comfy.Template {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := json.Marshal(nodes)
	if err != nil {
		t.Fatalf("marshal template: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	tmpl, err := comfy.LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	return tmpl
}

func testAdapters(t *testing.T) generation.Adapters {
	t.Helper()
	dir := t.TempDir()
	imageClean := writeTemplate(t, dir, "image_clean.json", map[string]map[string]any{
		"78": {"class_type": "LoadImage", "inputs": map[string]any{"image": ""}},
		"76": {"class_type": "TextEncodeQwenImageEdit", "inputs": map[string]any{"prompt": "remove text and watermarks"}},
	})
	voiceClone := writeTemplate(t, dir, "voice_clone.json", map[string]map[string]any{
		"101": {"class_type": "LoadAudio", "inputs": map[string]any{"audio": ""}},
		"102": {"class_type": "MultiLinePromptIndex", "inputs": map[string]any{"multi_line_prompt": ""}},
	})
	digitalHuman := writeTemplate(t, dir, "digital_human.json", map[string]map[string]any{
		"1": {"class_type": "LoadImage", "inputs": map[string]any{"image": ""}},
		"2": {"class_type": "LoadAudio", "inputs": map[string]any{"audio": ""}},
		"9": {"class_type": "VHS_VideoCombine", "inputs": map[string]any{"frame_rate": 25}},
	})
	return generation.Adapters{
		ImageClean:   generation.NewImageCleanAdapter(imageClean),
		VoiceClone:   generation.NewVoiceCloneAdapter(voiceClone),
		DigitalHuman: generation.NewDigitalHumanAdapter(digitalHuman),
	}
}

type fakeRunner struct {
	mu        sync.Mutex
	uploads   []string
	submitted []generation.StageID
	// failures maps a stage to how many attempts should fail before one
	// succeeds. -1 fails every attempt.
	failures   map[generation.StageID]int
	submitErrs map[generation.StageID]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		failures:   map[generation.StageID]int{},
		submitErrs: map[generation.StageID]error{},
	}
}

func stageOf(correlationID string) generation.StageID {
	for _, stage := range []generation.StageID{generation.StageImageClean, generation.StageVoiceClone, generation.StageDigitalHuman} {
		if strings.HasPrefix(correlationID, string(stage)) {
			return stage
		}
	}
	return generation.StageID("unknown")
}

func (f *fakeRunner) UploadAsset(_ context.Context, path, _ string) (comfy.AssetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filepath.Base(path))
	return comfy.AssetRef{Name: filepath.Base(path), Kind: comfy.KindForPath(path)}, nil
}

func (f *fakeRunner) Submit(_ context.Context, req comfy.JobRequest) (*comfy.JobHandle, error) {
	stage := stageOf(req.CorrelationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, stage)
	if err := f.submitErrs[stage]; err != nil {
		return nil, err
	}
	return &comfy.JobHandle{ID: req.CorrelationID, SubmittedAt: time.Now()}, nil
}

func (f *fakeRunner) WaitUntilTerminal(_ context.Context, handle *comfy.JobHandle, _, _ time.Duration) (comfy.JobStatus, error) {
	stage := stageOf(handle.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining := f.failures[stage]; remaining != 0 {
		if remaining > 0 {
			f.failures[stage] = remaining - 1
		}
		return comfy.JobStatus{State: comfy.StateFailed, Messages: []string{"synthetic failure"}}, nil
	}
	return successStatus(stage), nil
}

func successStatus(stage generation.StageID) comfy.JobStatus {
	switch stage {
	case generation.StageImageClean:
		return comfy.JobStatus{State: comfy.StateSucceeded, Outputs: map[string][]comfy.AssetRef{
			"images": {{Name: "clean.png", Kind: comfy.AssetImage}},
		}}
	case generation.StageVoiceClone:
		return comfy.JobStatus{State: comfy.StateSucceeded, Outputs: map[string][]comfy.AssetRef{
			"audio": {{Name: "voice.wav", Kind: comfy.AssetAudio}},
		}}
	default:
		return comfy.JobStatus{State: comfy.StateSucceeded, Outputs: map[string][]comfy.AssetRef{
			"gifs": {{Name: "ad.mp4", Kind: comfy.AssetVideo}},
		}}
	}
}

func (f *fakeRunner) FetchAsset(_ context.Context, ref comfy.AssetRef, destPath string) error {
	return os.WriteFile(destPath, []byte(ref.Name), 0o644)
}

func (f *fakeRunner) submittedStages() []generation.StageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generation.StageID(nil), f.submitted...)
}

func fixtureRequest(t *testing.T) generation.Request {
	t.Helper()
	dir := t.TempDir()
	portrait := filepath.Join(dir, "portrait.png")
	voiceRef := filepath.Join(dir, "reference.wav")
	for _, path := range []string{portrait, voiceRef} {
		if err := os.WriteFile(path, []byte("fixture"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	return generation.Request{
		PortraitPath: portrait,
		VoiceRefPath: voiceRef,
		Script:       "try our new coffee blend",
		WorkDir:      dir,
		FrameRate:    25,
	}
}

func newOrchestrator(runner generation.JobRunner, adapters generation.Adapters, delays *[]time.Duration) *generation.Orchestrator {
	cfg := generation.DefaultConfig()
	cfg.BaseDelay = 10 * time.Millisecond
	return generation.NewOrchestrator(runner, adapters, cfg, nil, generation.WithSleeper(func(d time.Duration) {
		if delays != nil {
			*delays = append(*delays, d)
		}
	}))
}

func TestRunProducesCompleteBundle(t *testing.T) {
	runner := newFakeRunner()
	orchestrator := newOrchestrator(runner, testAdapters(t), nil)

	result, err := orchestrator.Run(context.Background(), fixtureRequest(t))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.UsedImageFallback {
		t.Fatal("expected no image fallback")
	}
	if result.VideoPath == "" {
		t.Fatal("expected final video path")
	}
	if data, err := os.ReadFile(result.VideoPath); err != nil || string(data) != "ad.mp4" {
		t.Fatalf("expected fetched video, got %q err %v", data, err)
	}
	want := []generation.StageID{generation.StageImageClean, generation.StageVoiceClone, generation.StageDigitalHuman}
	got := runner.submittedStages()
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage order mismatch at %d: %v", i, got)
		}
	}
	// The digital human stage must consume the cleaned portrait, not the original.
	lastUploads := runner.uploads[len(runner.uploads)-2:]
	if lastUploads[0] != "portrait_clean.png" {
		t.Fatalf("expected cleaned portrait upload, got %v", runner.uploads)
	}
	wantAssets := []string{"clean.png", "voice.wav", "ad.mp4"}
	for i, stage := range result.Stages {
		if !stage.Succeeded {
			t.Fatalf("stage %s did not succeed: %+v", stage.Stage, stage)
		}
		if stage.Asset.Name != wantAssets[i] {
			t.Fatalf("stage %s recorded asset %q, want %q", stage.Stage, stage.Asset.Name, wantAssets[i])
		}
	}
}

func TestRunImageCleanFallbackContinuesWithOriginal(t *testing.T) {
	runner := newFakeRunner()
	runner.failures[generation.StageImageClean] = -1

	orchestrator := newOrchestrator(runner, testAdapters(t), nil)
	result, err := orchestrator.Run(context.Background(), fixtureRequest(t))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !result.UsedImageFallback {
		t.Fatal("expected image fallback flag")
	}
	if result.Stages[0].Succeeded || !result.Stages[0].UsedFallback {
		t.Fatalf("unexpected image clean stage result: %+v", result.Stages[0])
	}
	if result.Stages[0].Attempts != 2 {
		t.Fatalf("expected 2 image clean attempts, got %d", result.Stages[0].Attempts)
	}
	found := false
	for _, upload := range runner.uploads {
		if upload == "portrait.png" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected original portrait re-upload for digital human, got %v", runner.uploads)
	}
	if result.VideoPath == "" {
		t.Fatal("pipeline should complete despite image fallback")
	}
}

func TestRunVoiceCloneFailureAbortsBeforeDigitalHuman(t *testing.T) {
	runner := newFakeRunner()
	runner.failures[generation.StageVoiceClone] = -1

	orchestrator := newOrchestrator(runner, testAdapters(t), nil)
	_, err := orchestrator.Run(context.Background(), fixtureRequest(t))
	if err == nil {
		t.Fatal("expected fatal voice clone failure")
	}
	if !strings.Contains(err.Error(), "voice") {
		t.Fatalf("expected failing stage in error, got %q", err.Error())
	}
	for _, stage := range runner.submittedStages() {
		if stage == generation.StageDigitalHuman {
			t.Fatal("digital human must never run after a fatal voice clone failure")
		}
	}
}

func TestRunRetryDelaysStrictlyIncrease(t *testing.T) {
	runner := newFakeRunner()
	runner.failures[generation.StageDigitalHuman] = 2

	var delays []time.Duration
	cfg := generation.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.BaseDelay = 10 * time.Millisecond
	orchestrator := generation.NewOrchestrator(runner, testAdapters(t), cfg, nil,
		generation.WithSleeper(func(d time.Duration) { delays = append(delays, d) }))

	result, err := orchestrator.Run(context.Background(), fixtureRequest(t))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Stages[2].Attempts != 3 {
		t.Fatalf("expected 3 digital human attempts, got %d", result.Stages[2].Attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 inter-attempt delays, got %v", delays)
	}
	if delays[1] <= delays[0] {
		t.Fatalf("expected strictly increasing delays, got %v", delays)
	}
}

func TestRunDoesNotRetryValidationRejections(t *testing.T) {
	runner := newFakeRunner()
	runner.submitErrs[generation.StageVoiceClone] = fmt.Errorf("%w: node errors: bad slot", services.ErrValidation)

	orchestrator := newOrchestrator(runner, testAdapters(t), nil)
	_, err := orchestrator.Run(context.Background(), fixtureRequest(t))
	if err == nil {
		t.Fatal("expected error")
	}
	count := 0
	for _, stage := range runner.submittedStages() {
		if stage == generation.StageVoiceClone {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected single submission for validation rejection, got %d", count)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	adapters := testAdapters(t)
	status := successStatus(generation.StageDigitalHuman)

	first, err := adapters.DigitalHuman.Extract(status)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	second, err := adapters.DigitalHuman.Extract(status)
	if err != nil {
		t.Fatalf("second Extract returned error: %v", err)
	}
	if first != second {
		t.Fatalf("Extract not idempotent: %+v vs %+v", first, second)
	}
}

func TestExtractMissingOutputGroup(t *testing.T) {
	adapters := testAdapters(t)
	status := comfy.JobStatus{State: comfy.StateSucceeded, Outputs: map[string][]comfy.AssetRef{
		"images": {{Name: "wrong.png"}},
	}}
	_, err := adapters.DigitalHuman.Extract(status)
	if !errors.Is(err, generation.ErrOutputMissing) {
		t.Fatalf("expected ErrOutputMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "images") {
		t.Fatalf("expected available groups listed, got %q", err.Error())
	}
}

func TestBuildRequestBindsSlots(t *testing.T) {
	adapters := testAdapters(t)
	req, err := adapters.VoiceClone.BuildRequest(generation.StageInput{AudioName: "ref.wav", Script: "hello"})
	if err != nil {
		t.Fatalf("BuildRequest returned error: %v", err)
	}
	if req.Graph["101"].Inputs["audio"] != "ref.wav" {
		t.Fatalf("audio slot not bound: %+v", req.Graph["101"].Inputs)
	}
	if req.Graph["102"].Inputs["multi_line_prompt"] != "hello" {
		t.Fatalf("script slot not bound: %+v", req.Graph["102"].Inputs)
	}
	if !strings.HasPrefix(req.CorrelationID, string(generation.StageVoiceClone)) {
		t.Fatalf("correlation id should carry the stage: %q", req.CorrelationID)
	}
}
