package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"adsplice/internal/services"
)

// DefaultModel is the whisper model used when none is configured.
const DefaultModel = "base"

// Config captures the whisper invocation settings.
type Config struct {
	Binary   string
	Model    string
	Language string
	Device   string
}

// Service transcribes audio with the whisper CLI.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "whisper"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Segment is one timed span of transcribed speech.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the span length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Result is a complete transcription.
type Result struct {
	Segments []Segment
	Language string
	FullText string
	JSONPath string
}

// TextAt returns the segment text covering the timestamp, widened by
// window seconds on both sides. Empty when no segment covers it.
func (r Result) TextAt(time, window float64) string {
	for _, segment := range r.Segments {
		if segment.Start-window <= time && time <= segment.End+window {
			return strings.TrimSpace(segment.Text)
		}
	}
	return ""
}

// ContextAround returns the texts of up to before segments preceding the
// timestamp and up to after segments following it.
func (r Result) ContextAround(time float64, before, after int) (string, string) {
	split := len(r.Segments)
	for i, segment := range r.Segments {
		if segment.Start > time {
			split = i
			break
		}
	}
	lo := split - before
	if lo < 0 {
		lo = 0
	}
	hi := split + after
	if hi > len(r.Segments) {
		hi = len(r.Segments)
	}
	return joinSegments(r.Segments[lo:split]), joinSegments(r.Segments[split:hi])
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// whisperPayload is the JSON structure whisper writes next to the input.
type whisperPayload struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe runs whisper on the audio file and loads the timed result.
// outputDir receives whisper's JSON artifact and defaults to the source
// file's directory.
func (s *Service) Transcribe(ctx context.Context, source, outputDir string) (Result, error) {
	var result Result
	if source == "" {
		return result, fmt.Errorf("%w: transcribe: source path required", services.ErrValidation)
	}
	if _, err := os.Stat(source); err != nil {
		return result, fmt.Errorf("%w: transcribe: %s", services.ErrNotFound, source)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := s.run(ctx, s.cfg.Binary, s.buildArgs(source, outputDir)...); err != nil {
		return result, fmt.Errorf("whisper: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	loaded, err := LoadResult(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return result, fmt.Errorf("transcribe: %w", err)
	}
	result = loaded
	if len(result.Segments) == 0 {
		return result, fmt.Errorf("%w: transcribe: no speech detected in %s", services.ErrValidation, filepath.Base(source))
	}
	return result, nil
}

func (s *Service) buildArgs(source, outputDir string) []string {
	args := []string{
		source,
		"--model", s.cfg.Model,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--verbose", "False",
	}
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	if s.cfg.Device != "" {
		args = append(args, "--device", s.cfg.Device)
	}
	return args
}

// LoadResult reloads a previously written transcription artifact.
func LoadResult(jsonPath string) (Result, error) {
	var result Result
	payload, err := loadPayload(jsonPath)
	if err != nil {
		return result, err
	}
	result.JSONPath = jsonPath
	result.Language = payload.Language
	result.FullText = strings.TrimSpace(payload.Text)
	result.Segments = make([]Segment, 0, len(payload.Segments))
	for _, segment := range payload.Segments {
		segment.Text = strings.TrimSpace(segment.Text)
		if segment.Text == "" {
			continue
		}
		result.Segments = append(result.Segments, segment)
	}
	return result, nil
}

func loadPayload(jsonPath string) (whisperPayload, error) {
	var payload whisperPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, fmt.Errorf("read whisper json: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload, nil
}
