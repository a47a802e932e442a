package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"adsplice/internal/asr"
	"adsplice/internal/config"
	"adsplice/internal/logging"
	"adsplice/internal/media"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/stage"
)

const (
	audioSampleRate   = 16000
	vocalClipSeconds  = 10.0
	minVocalClipSecs  = 5.0
	transcriptDirName = "transcript"
)

// MediaService describes the ffmpeg-backed operations the analyzer needs.
type MediaService interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
	ExtractAudio(ctx context.Context, source, dest string, sampleRate int, mono bool) error
	ExtractAudioClip(ctx context.Context, source, dest string, startSec, durationSec float64, sampleRate int) error
}

// Transcriber produces a transcript for an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, source, outputDir string) (asr.Result, error)
}

// Analyzer probes the source video, extracts audio, and transcribes it so
// planning has a transcript and a voice sample to work from.
type Analyzer struct {
	cfg         *config.Config
	store       *queue.Store
	logger      *slog.Logger
	media       MediaService
	transcriber Transcriber
}

// NewAnalyzer constructs the analyzer stage handler using default dependencies.
func NewAnalyzer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Analyzer {
	mediaService := media.NewService(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	transcriber := asr.NewService(asr.Config{Binary: cfg.WhisperBinary()})
	return NewAnalyzerWithDependencies(cfg, store, logger, mediaService, transcriber)
}

// NewAnalyzerWithDependencies allows injecting collaborators (used in tests).
func NewAnalyzerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, mediaService MediaService, transcriber Transcriber) *Analyzer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "analyzer"))
	}
	return &Analyzer{cfg: cfg, store: store, logger: stageLogger, media: mediaService, transcriber: transcriber}
}

// SetLogger updates the logger used during stage execution.
func (a *Analyzer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	a.logger = logger.With(logging.String("component", "analyzer"))
}

func (a *Analyzer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, a.logger)
	if strings.TrimSpace(item.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, "analyzing", "validate inputs",
			"Queue item has no source video path", nil)
	}
	if _, err := os.Stat(item.SourcePath); err != nil {
		return services.Wrap(services.ErrNotFound, "analyzing", "validate inputs",
			fmt.Sprintf("Source video missing: %s", item.SourcePath), err)
	}
	item.SetProgress("Analyzing", "Preparing content analysis", 0)
	logger.Info(
		"starting analysis preparation",
		logging.String("video_title", strings.TrimSpace(item.VideoTitle)),
		logging.String("source_file", strings.TrimSpace(item.SourcePath)),
	)
	return nil
}

func (a *Analyzer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, a.logger)

	meta, err := a.media.Probe(ctx, item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "analyzing", "probe source",
			"Failed to inspect source video", err)
	}
	if !meta.HasAudio {
		return services.Wrap(services.ErrValidation, "analyzing", "probe source",
			"Source video has no audio track; narration is required for ad insertion", nil)
	}
	if min := float64(a.cfg.Video.MinDurationSeconds); meta.Duration < min {
		return services.Wrap(services.ErrValidation, "analyzing", "probe source",
			fmt.Sprintf("Source video is %.1fs; at least %.0fs is required", meta.Duration, min), nil)
	}
	if max := float64(a.cfg.Video.MaxDurationSeconds); max > 0 && meta.Duration > max {
		return services.Wrap(services.ErrValidation, "analyzing", "probe source",
			fmt.Sprintf("Source video is %.1fs; at most %.0fs is supported", meta.Duration, max), nil)
	}
	item.DurationSeconds = meta.Duration
	logger.Info(
		"source video probed",
		logging.String("codec", meta.Codec),
		logging.Float64("duration_seconds", meta.Duration),
		logging.Int("width", meta.Width),
		logging.Int("height", meta.Height),
	)

	workDir, err := a.itemWorkDir(item)
	if err != nil {
		return err
	}

	a.updateProgress(ctx, item, "Extracting audio track", 25)
	audioPath := filepath.Join(workDir, "audio.wav")
	if err := a.media.ExtractAudio(ctx, item.SourcePath, audioPath, audioSampleRate, true); err != nil {
		return services.Wrap(services.ErrExternalTool, "analyzing", "extract audio",
			"Failed to extract the audio track", err)
	}

	a.updateProgress(ctx, item, "Transcribing narration", 50)
	transcriptDir := filepath.Join(workDir, transcriptDirName)
	result, err := a.transcriber.Transcribe(ctx, audioPath, transcriptDir)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "analyzing", "transcribe audio",
			"Transcription failed", err)
	}
	item.TranscriptPath = result.JSONPath
	logger.Info(
		"transcription complete",
		logging.Int("segments", len(result.Segments)),
		logging.String("language", result.Language),
	)

	a.updateProgress(ctx, item, "Extracting voice sample", 80)
	clipStart, clipDuration, err := vocalClipWindow(result.Segments, meta.Duration)
	if err != nil {
		return err
	}
	clipPath := filepath.Join(workDir, "voice_sample.wav")
	if err := a.media.ExtractAudioClip(ctx, item.SourcePath, clipPath, clipStart, clipDuration, audioSampleRate); err != nil {
		return services.Wrap(services.ErrExternalTool, "analyzing", "extract voice sample",
			"Failed to extract the voice sample clip", err)
	}
	item.VocalClipPath = clipPath

	item.SetProgress("Analyzing", "Content analysis complete", 100)
	return nil
}

// HealthCheck verifies the external binaries and staging directory the
// analyzer depends on.
func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	var missing []string
	for _, binary := range []string{a.cfg.FFprobeBinary(), a.cfg.FFmpegBinary(), a.cfg.WhisperBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			missing = append(missing, binary)
		}
	}
	if len(missing) > 0 {
		return stage.Unhealthy("analyzer", "missing binaries: "+strings.Join(missing, ", "))
	}
	if err := os.MkdirAll(a.cfg.Paths.StagingDir, 0o755); err != nil {
		return stage.Unhealthy("analyzer", "staging directory unavailable: "+err.Error())
	}
	return stage.Healthy("analyzer")
}

func (a *Analyzer) itemWorkDir(item *queue.Item) (string, error) {
	dir := filepath.Join(a.cfg.Paths.StagingDir, fmt.Sprintf("item-%d", item.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "analyzing", "create staging directory",
			fmt.Sprintf("Cannot create %s", dir), err)
	}
	return dir, nil
}

func (a *Analyzer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Analyzing", message, percent)
	if a.store == nil {
		return
	}
	if err := a.store.Update(ctx, item); err != nil {
		logging.WithContext(ctx, a.logger).Warn("failed to persist progress", logging.Error(err))
	}
}

// vocalClipWindow picks the start and length of the voice sample used for
// cloning. The longest transcript segment anchors the window so the sample
// contains continuous speech from the presenter.
func vocalClipWindow(segments []asr.Segment, videoDuration float64) (float64, float64, error) {
	var best asr.Segment
	for _, segment := range segments {
		if segment.Duration() > best.Duration() {
			best = segment
		}
	}
	if best.Duration() <= 0 {
		return 0, 0, services.Wrap(services.ErrValidation, "analyzing", "select voice sample",
			"Transcript contains no speech segments to sample", nil)
	}

	start := best.Start
	duration := vocalClipSeconds
	if remaining := videoDuration - start; remaining < duration {
		duration = remaining
	}
	if duration < minVocalClipSecs {
		// Slide the window back so a short tail segment still yields a
		// usable sample length.
		start = videoDuration - minVocalClipSecs
		if start < 0 {
			start = 0
		}
		duration = videoDuration - start
	}
	if duration < minVocalClipSecs {
		return 0, 0, services.Wrap(services.ErrValidation, "analyzing", "select voice sample",
			fmt.Sprintf("Video too short for a %.0fs voice sample", minVocalClipSecs), nil)
	}
	return start, duration, nil
}
