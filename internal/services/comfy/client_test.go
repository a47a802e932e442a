package comfy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"adsplice/internal/services"
	"adsplice/internal/services/comfy"
)

func newTestClient(t *testing.T, serverURL string, delays *[]time.Duration) *comfy.Client {
	t.Helper()
	return comfy.NewClient(
		comfy.Config{
			BaseURL: serverURL,
			Retry:   comfy.Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
		},
		comfy.WithSleeper(func(d time.Duration) {
			if delays != nil {
				*delays = append(*delays, d)
			}
		}),
	)
}

func graphFixture() comfy.Graph {
	return comfy.Graph{
		"3": {ClassType: "KSampler", Inputs: map[string]any{"seed": 42}},
	}
}

func TestSubmitRetriesServerErrorsWithIncreasingDelays(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Connection") != "close" {
			t.Errorf("expected Connection: close header, got %q", r.Header.Get("Connection"))
		}
		if n := atomic.AddInt32(&attempts, 1); n <= 2 {
			http.Error(w, "executor overloaded", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"prompt_id":"job-1"}`)
	}))
	defer server.Close()

	var delays []time.Duration
	client := newTestClient(t, server.URL, &delays)

	handle, err := client.Submit(context.Background(), comfy.JobRequest{Graph: graphFixture(), CorrelationID: "corr-1"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if handle.ID != "job-1" {
		t.Fatalf("unexpected job id: %q", handle.ID)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 retry sleeps, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("expected strictly increasing delays, got %v", delays)
		}
	}
}

func TestSubmitGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "still broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.Submit(context.Background(), comfy.JobRequest{Graph: graphFixture()})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Fatalf("expected 5 attempts, got %d", got)
	}
}

func TestSubmitDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "malformed graph", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.Submit(context.Background(), comfy.JobRequest{Graph: graphFixture()})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected single attempt for client error, got %d", got)
	}
	if want := "malformed graph"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected server message %q preserved in %q", want, err.Error())
	}
}

func TestSubmitSurfacesNodeErrorsVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"prompt_id":"","node_errors":{"12":{"errors":[{"message":"value not in list"}]}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.Submit(context.Background(), comfy.JobRequest{Graph: graphFixture()})
	if err == nil {
		t.Fatal("expected node error to fail submission")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "value not in list") {
		t.Fatalf("expected node error detail preserved, got %q", err.Error())
	}
}

func TestUploadAssetRoutesByKind(t *testing.T) {
	var gotPath, gotField, gotOverwrite string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		for field := range r.MultipartForm.File {
			gotField = field
		}
		gotOverwrite = r.FormValue("overwrite")
		fmt.Fprint(w, `{"name":"clip.wav","subfolder":"","type":"input"}`)
	}))
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	client := newTestClient(t, server.URL, nil)
	ref, err := client.UploadAsset(context.Background(), audioPath, "")
	if err != nil {
		t.Fatalf("UploadAsset returned error: %v", err)
	}
	if gotPath != "/upload/audio" {
		t.Fatalf("expected audio upload route, got %q", gotPath)
	}
	if gotField != "audio" {
		t.Fatalf("expected audio form field, got %q", gotField)
	}
	if gotOverwrite != "true" {
		t.Fatalf("expected overwrite=true, got %q", gotOverwrite)
	}
	if ref.Name != "clip.wav" || ref.Kind != comfy.AssetAudio {
		t.Fatalf("unexpected asset ref: %+v", ref)
	}
}

func TestUploadAssetMissingFile(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0", nil)
	_, err := client.UploadAsset(context.Background(), filepath.Join(t.TempDir(), "absent.png"), "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestPollMapsHistoryStates(t *testing.T) {
	responses := []string{
		`{}`,
		`{"job-2":{"status":{"status_str":"running"}}}`,
		`{"job-2":{"status":{"status_str":"success","completed":true},"outputs":{"60":{"gifs":[{"filename":"out.mp4","subfolder":"videos","type":"output"}]}}}}`,
	}
	var call int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		idx := atomic.AddInt32(&call, 1) - 1
		if int(idx) >= len(responses) {
			idx = int32(len(responses)) - 1
		}
		fmt.Fprint(w, responses[idx])
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	handle := &comfy.JobHandle{ID: "job-2"}

	status, err := client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.State != comfy.StatePending {
		t.Fatalf("expected pending for empty history, got %v", status.State)
	}

	status, err = client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.State != comfy.StateRunning {
		t.Fatalf("expected running, got %v", status.State)
	}

	status, err = client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.State != comfy.StateSucceeded {
		t.Fatalf("expected succeeded, got %v", status.State)
	}
	videos := status.Outputs["gifs"]
	if len(videos) != 1 || videos[0].Name != "out.mp4" || videos[0].Kind != comfy.AssetVideo {
		t.Fatalf("unexpected outputs: %+v", status.Outputs)
	}
}

func TestPollNeverRegressesTerminalStatus(t *testing.T) {
	var call int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&call, 1) == 1 {
			fmt.Fprint(w, `{"job-3":{"status":{"status_str":"success","completed":true},"outputs":{"9":{"images":[{"filename":"clean.png","subfolder":"","type":"output"}]}}}}`)
			return
		}
		// History evicted: the executor now reports nothing for this job.
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	handle := &comfy.JobHandle{ID: "job-3"}

	first, err := client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if first.State != comfy.StateSucceeded {
		t.Fatalf("expected succeeded, got %v", first.State)
	}

	second, err := client.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if second.State != comfy.StateSucceeded {
		t.Fatalf("terminal status regressed to %v", second.State)
	}
	if len(second.Outputs["images"]) != 1 {
		t.Fatalf("cached terminal status lost outputs: %+v", second.Outputs)
	}
	if atomic.LoadInt32(&call) != 1 {
		t.Fatalf("expected cached poll to skip the network, got %d calls", call)
	}
}

func TestPollReportsFailureMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"job-4":{"status":{"status_str":"error","messages":[["execution_error",{"node_id":"7","exception_message":"CUDA out of memory"}]]}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	status, err := client.Poll(context.Background(), &comfy.JobHandle{ID: "job-4"})
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if status.State != comfy.StateFailed {
		t.Fatalf("expected failed, got %v", status.State)
	}
	if len(status.Messages) != 1 || !strings.Contains(status.Messages[0], "CUDA out of memory") {
		t.Fatalf("expected executor failure detail, got %v", status.Messages)
	}
}

func TestWaitUntilTerminalReturnsOnSuccess(t *testing.T) {
	var call int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&call, 1) < 3 {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprint(w, `{"job-5":{"status":{"status_str":"success","completed":true},"outputs":{}}}`)
	}))
	defer server.Close()

	client := comfy.NewClient(comfy.Config{BaseURL: server.URL})
	status, err := client.WaitUntilTerminal(context.Background(), &comfy.JobHandle{ID: "job-5"}, 5*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitUntilTerminal returned error: %v", err)
	}
	if status.State != comfy.StateSucceeded {
		t.Fatalf("expected succeeded, got %v", status.State)
	}
	if atomic.LoadInt32(&call) != 3 {
		t.Fatalf("expected 3 polls, got %d", call)
	}
}

func TestWaitUntilTerminalTimesOutWithinOnePollInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	const (
		timeout      = 150 * time.Millisecond
		pollInterval = 50 * time.Millisecond
	)
	client := comfy.NewClient(comfy.Config{BaseURL: server.URL})

	start := time.Now()
	_, err := client.WaitUntilTerminal(context.Background(), &comfy.JobHandle{ID: "job-6"}, timeout, pollInterval)
	elapsed := time.Since(start)

	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < timeout {
		t.Fatalf("timed out too early: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+pollInterval+100*time.Millisecond {
		t.Fatalf("timed out too late: %v", elapsed)
	}
}

func TestWaitUntilTerminalHonorsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	client := comfy.NewClient(comfy.Config{BaseURL: server.URL})
	_, err := client.WaitUntilTerminal(ctx, &comfy.JobHandle{ID: "job-7"}, time.Minute, 20*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestFetchAssetWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filename") != "out.mp4" {
			t.Errorf("unexpected filename query: %q", r.URL.Query().Get("filename"))
		}
		if r.URL.Query().Get("type") != "output" {
			t.Errorf("unexpected type query: %q", r.URL.Query().Get("type"))
		}
		w.Write([]byte("video-bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "out.mp4")
	client := newTestClient(t, server.URL, nil)
	if err := client.FetchAsset(context.Background(), comfy.AssetRef{Name: "out.mp4", Kind: comfy.AssetVideo}, dest); err != nil {
		t.Fatalf("FetchAsset returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	if string(data) != "video-bytes" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestTemplateBindOverridesByClassType(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "digital_human.json")
	raw := map[string]any{
		"1": map[string]any{"class_type": "LoadImage", "inputs": map[string]any{"image": "placeholder.png"}},
		"2": map[string]any{"class_type": "LoadAudio", "inputs": map[string]any{"audio": "placeholder.wav"}},
		"9": map[string]any{"class_type": "VHS_VideoCombine", "inputs": map[string]any{"frame_rate": 25}},
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal template: %v", err)
	}
	if err := os.WriteFile(templatePath, data, 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	tmpl, err := comfy.LoadTemplate(templatePath)
	if err != nil {
		t.Fatalf("LoadTemplate returned error: %v", err)
	}

	graph, err := tmpl.Bind(comfy.SlotBindings{
		"LoadImage": {"image": "portrait.png"},
		"LoadAudio": {"audio": "cloned.wav"},
	})
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	if graph["1"].Inputs["image"] != "portrait.png" {
		t.Fatalf("image slot not bound: %+v", graph["1"].Inputs)
	}
	if graph["2"].Inputs["audio"] != "cloned.wav" {
		t.Fatalf("audio slot not bound: %+v", graph["2"].Inputs)
	}

	// Binding must not leak into the template for later requests.
	again, err := tmpl.Bind(comfy.SlotBindings{"LoadImage": {"image": "other.png"}})
	if err != nil {
		t.Fatalf("second Bind returned error: %v", err)
	}
	if again["2"].Inputs["audio"] != "placeholder.wav" {
		t.Fatalf("template mutated by earlier bind: %+v", again["2"].Inputs)
	}

	if _, err := tmpl.Bind(comfy.SlotBindings{"MissingClass": {"x": 1}}); err == nil {
		t.Fatal("expected error for unmatched class type")
	}
}
