package composition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"adsplice/internal/config"
	"adsplice/internal/logging"
	"adsplice/internal/media"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/stage"
)

// Engine splices the ad segment into the source video.
type Engine interface {
	InsertAd(ctx context.Context, req Request) error
}

// Prober supplies source video metadata for normalization.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
}

// Splicer implements the final workflow stage. It cuts the source at the
// committed insertion point, splices the generated ad segment in, and
// writes the finished video to the output directory.
type Splicer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	engine Engine
	prober Prober
}

// NewSplicer constructs the composition stage handler using default dependencies.
func NewSplicer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Splicer {
	engine := NewComposer(cfg.FFmpegBinary(), logger)
	prober := media.NewService(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	return NewSplicerWithDependencies(cfg, store, logger, engine, prober)
}

// NewSplicerWithDependencies allows injecting collaborators (used in tests).
func NewSplicerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, engine Engine, prober Prober) *Splicer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "splicer"))
	}
	return &Splicer{cfg: cfg, store: store, logger: stageLogger, engine: engine, prober: prober}
}

// SetLogger updates the logger used during stage execution.
func (s *Splicer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.logger = logger.With(logging.String("component", "splicer"))
}

func (s *Splicer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, s.logger)
	if strings.TrimSpace(item.AdVideoPath) == "" {
		return services.Wrap(services.ErrValidation, "composing", "validate inputs",
			"No ad segment recorded; run generation before composition", nil)
	}
	if _, err := os.Stat(item.AdVideoPath); err != nil {
		return services.Wrap(services.ErrNotFound, "composing", "validate inputs",
			fmt.Sprintf("Ad segment missing: %s", item.AdVideoPath), err)
	}
	if _, err := stage.ParseDecision(item.InsertionJSON); err != nil {
		return err
	}
	item.SetProgress("Composing", "Preparing final composition", 0)
	logger.Info(
		"starting composition preparation",
		logging.String("video_title", strings.TrimSpace(item.VideoTitle)),
		logging.String("ad_video", strings.TrimSpace(item.AdVideoPath)),
	)
	return nil
}

func (s *Splicer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, s.logger)

	decision, err := stage.ParseDecision(item.InsertionJSON)
	if err != nil {
		return err
	}

	meta, err := s.prober.Probe(ctx, item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "composing", "probe source",
			"Failed to inspect source video", err)
	}
	frameRate := meta.FPS
	if frameRate <= 0 {
		frameRate = 25
	}

	if err := os.MkdirAll(s.cfg.Paths.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "composing", "create output directory",
			fmt.Sprintf("Cannot create %s", s.cfg.Paths.OutputDir), err)
	}
	outputPath := filepath.Join(s.cfg.Paths.OutputDir, outputFilename(item))

	s.updateProgress(ctx, item, "Splicing ad into source video", 30)
	err = s.engine.InsertAd(ctx, Request{
		SourcePath:    item.SourcePath,
		AdPath:        item.AdVideoPath,
		InsertionTime: decision.Timestamp,
		OutputPath:    outputPath,
		Width:         meta.Width,
		Height:        meta.Height,
		FPS:           frameRate,
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "composing", "splice video",
			"Final composition failed", err)
	}
	item.FinalFile = outputPath
	logger.Info(
		"final video written",
		logging.String("final_file", outputPath),
		logging.Float64("insertion_time", decision.Timestamp),
	)

	item.SetProgress("Composing", "Final video written", 100)
	return nil
}

// HealthCheck verifies ffmpeg and the output directory.
func (s *Splicer) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy("splicer", "missing binary: "+s.cfg.FFmpegBinary())
	}
	if strings.TrimSpace(s.cfg.Paths.OutputDir) == "" {
		return stage.Unhealthy("splicer", "output_dir not configured")
	}
	return stage.Healthy("splicer")
}

func (s *Splicer) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Composing", message, percent)
	if s.store == nil {
		return
	}
	if err := s.store.Update(ctx, item); err != nil {
		logging.WithContext(ctx, s.logger).Warn("failed to persist progress", logging.Error(err))
	}
}

func outputFilename(item *queue.Item) string {
	base := strings.TrimSpace(item.VideoTitle)
	if base == "" {
		name := filepath.Base(item.SourcePath)
		base = strings.TrimSuffix(name, filepath.Ext(name))
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	base = strings.ReplaceAll(base, " ", "_")
	return base + "_with_ad.mp4"
}
