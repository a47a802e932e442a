package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"adsplice/internal/config"
)

func TestLoadDefaultConfigUsesEnvLLMKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "adsplice", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "videos", "adsplice") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7603" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.ExecutorBaseURL() != "http://127.0.0.1:8188" {
		t.Fatalf("unexpected executor base url: %q", cfg.ExecutorBaseURL())
	}
	if cfg.Executor.MaxAttempts != 5 {
		t.Fatalf("unexpected executor max attempts: %d", cfg.Executor.MaxAttempts)
	}
	if cfg.Executor.StageMaxAttempts != 2 {
		t.Fatalf("unexpected stage max attempts: %d", cfg.Executor.StageMaxAttempts)
	}
	if cfg.Executor.DigitalHumanTimeout != 600 {
		t.Fatalf("unexpected digital human timeout: %d", cfg.Executor.DigitalHumanTimeout)
	}
	if cfg.Video.SemanticWeight != 0.4 || cfg.Video.FaceWeight != 0.6 {
		t.Fatalf("unexpected scoring weights: %v/%v", cfg.Video.SemanticWeight, cfg.Video.FaceWeight)
	}
	wantTemplate := filepath.Join(tempHome, ".config", "adsplice", "workflows", "voice_clone.json")
	if got := cfg.WorkflowTemplatePath(cfg.Executor.VoiceCloneWorkflow); got != wantTemplate {
		t.Fatalf("unexpected template path: got %q want %q", got, wantTemplate)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Paths.ReviewDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "adsplice.toml")

	type payload struct {
		LLM struct {
			APIKey string `toml:"api_key"`
		} `toml:"llm"`
		Executor struct {
			Host         string `toml:"host"`
			Port         int    `toml:"port"`
			PollInterval int    `toml:"poll_interval"`
		} `toml:"executor"`
		Workflow struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.LLM.APIKey = "abc123"
	custom.Executor.Host = "gpu-box.local"
	custom.Executor.Port = 9188
	custom.Executor.PollInterval = 1
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.LLM.APIKey != "abc123" {
		t.Fatalf("expected LLM key from file, got %q", cfg.LLM.APIKey)
	}
	if cfg.ExecutorBaseURL() != "http://gpu-box.local:9188" {
		t.Fatalf("unexpected executor base url: %q", cfg.ExecutorBaseURL())
	}
	if cfg.Executor.PollInterval != 1 {
		t.Fatalf("expected poll interval 1, got %d", cfg.Executor.PollInterval)
	}
	if cfg.Workflow.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[executor]") {
		t.Fatalf("sample config missing executor section: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	if runtime.GOOS != "windows" {
		if !strings.Contains(string(contents), "adsplice") {
			t.Fatal("expected sample to mention adsplice paths")
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Executor.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive poll interval")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Executor.Protocol = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Video.SemanticWeight = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when scoring weights do not sum to 1")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = "key"
	cfg.Video.MaxDurationSeconds = cfg.Video.MinDurationSeconds
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when max duration <= min duration")
	}

	cfg = config.Default()
	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when llm.api_key missing")
	}
}
