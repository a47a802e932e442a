package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir  string `toml:"staging_dir"`
	OutputDir   string `toml:"output_dir"`
	LogDir      string `toml:"log_dir"`
	ReviewDir   string `toml:"review_dir"`
	WorkflowDir string `toml:"workflow_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Executor contains configuration for the remote workflow executor.
type Executor struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Protocol       string `toml:"protocol"`
	RequestTimeout int    `toml:"request_timeout"`
	PollInterval   int    `toml:"poll_interval"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryBaseDelay int    `toml:"retry_base_delay"`
	RetryMaxDelay  int    `toml:"retry_max_delay"`

	// Per-stage wall-clock timeouts in seconds.
	ImageCleanTimeout   int `toml:"image_clean_timeout"`
	VoiceCloneTimeout   int `toml:"voice_clone_timeout"`
	DigitalHumanTimeout int `toml:"digital_human_timeout"`

	// Per-stage job graph templates, resolved against paths.workflow_dir
	// when relative.
	ImageCleanWorkflow   string `toml:"image_clean_workflow"`
	VoiceCloneWorkflow   string `toml:"voice_clone_workflow"`
	DigitalHumanWorkflow string `toml:"digital_human_workflow"`

	// StageMaxAttempts bounds how many times the orchestrator submits a
	// single generation stage before giving up on it.
	StageMaxAttempts int `toml:"stage_max_attempts"`
}

// LLM contains shared LLM connection settings used by analysis and planning.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Ads contains configuration for the advertisement catalog.
type Ads struct {
	CatalogPath  string `toml:"catalog_path"`
	DefaultTheme string `toml:"default_theme"`
}

// Video contains configuration for insertion point selection and
// source video acceptance.
type Video struct {
	MinDurationSeconds int     `toml:"min_duration_seconds"`
	MaxDurationSeconds int     `toml:"max_duration_seconds"`
	AvoidStartSeconds  float64 `toml:"avoid_start_seconds"`
	AvoidEndSeconds    float64 `toml:"avoid_end_seconds"`
	SemanticWeight     float64 `toml:"semantic_weight"`
	FaceWeight         float64 `toml:"face_weight"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Analysis           bool   `toml:"analysis"`
	Planning           bool   `toml:"planning"`
	Generation         bool   `toml:"generation"`
	Composition        bool   `toml:"composition"`
	Queue              bool   `toml:"queue"`
	Review             bool   `toml:"review"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for adsplice.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Executor: remote workflow executor connection, retries, stage timeouts
//   - LLM: shared LLM connection settings for analysis and planning
//   - Ads: advertisement catalog location and default theme
//   - Video: source duration bounds and insertion scoring weights
//   - Workflow: daemon polling intervals and timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Executor      Executor      `toml:"executor"`
	LLM           LLM           `toml:"llm"`
	Ads           Ads           `toml:"ads"`
	Video         Video         `toml:"video"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/adsplice/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/adsplice/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("adsplice.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.ReviewDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// ExecutorBaseURL returns the remote executor endpoint, e.g. http://127.0.0.1:8188.
func (c *Config) ExecutorBaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Executor.Protocol, c.Executor.Host, c.Executor.Port)
}

// WorkflowTemplatePath resolves a stage template path against paths.workflow_dir.
func (c *Config) WorkflowTemplatePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.WorkflowDir, name)
}

// FFmpegBinary returns the ffmpeg executable name used for media processing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// WhisperBinary returns the transcription executable name.
func (c *Config) WhisperBinary() string {
	return "whisper"
}

// FaceDetectBinary returns the face detection executable name.
func (c *Config) FaceDetectBinary() string {
	return "facedetect"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains common LLM settings used across features.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
