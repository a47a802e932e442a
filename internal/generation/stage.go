package generation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adsplice/internal/config"
	"adsplice/internal/logging"
	"adsplice/internal/media"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/services/comfy"
	"adsplice/internal/stage"
)

// Prober supplies source video metadata for the digital human stage.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
}

// Generator implements the generation workflow stage. It drives the
// remote executor through the three-stage orchestrator and records the
// rendered ad video on the queue item.
type Generator struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	runner JobRunner
	prober Prober
}

// NewGenerator constructs the generation stage handler using default dependencies.
func NewGenerator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Generator {
	runner := comfy.NewClient(comfy.Config{
		BaseURL:        cfg.ExecutorBaseURL(),
		RequestTimeout: time.Duration(cfg.Executor.RequestTimeout) * time.Second,
		Retry: comfy.Policy{
			MaxAttempts: cfg.Executor.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Executor.RetryBaseDelay) * time.Second,
			MaxDelay:    time.Duration(cfg.Executor.RetryMaxDelay) * time.Second,
		},
	})
	prober := media.NewService(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	return NewGeneratorWithDependencies(cfg, store, logger, runner, prober)
}

// NewGeneratorWithDependencies allows injecting collaborators (used in tests).
func NewGeneratorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, runner JobRunner, prober Prober) *Generator {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "generator"))
	}
	return &Generator{cfg: cfg, store: store, logger: stageLogger, runner: runner, prober: prober}
}

// SetLogger updates the logger used during stage execution.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	g.logger = logger.With(logging.String("component", "generator"))
}

func (g *Generator) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)
	for label, path := range map[string]string{
		"keyframe":     item.KeyframePath,
		"voice sample": item.VocalClipPath,
	} {
		if strings.TrimSpace(path) == "" {
			return services.Wrap(services.ErrValidation, "generating", "validate inputs",
				fmt.Sprintf("No %s recorded; run planning before generation", label), nil)
		}
		if _, err := os.Stat(path); err != nil {
			return services.Wrap(services.ErrNotFound, "generating", "validate inputs",
				fmt.Sprintf("Missing %s: %s", label, path), err)
		}
	}
	if strings.TrimSpace(item.AdScript) == "" {
		return services.Wrap(services.ErrValidation, "generating", "validate inputs",
			"No ad script recorded; run planning before generation", nil)
	}
	item.SetProgress("Generating", "Preparing ad generation", 0)
	logger.Info(
		"starting generation preparation",
		logging.String("video_title", strings.TrimSpace(item.VideoTitle)),
		logging.String("keyframe", strings.TrimSpace(item.KeyframePath)),
	)
	return nil
}

func (g *Generator) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)

	adapters, err := g.loadAdapters()
	if err != nil {
		return err
	}

	meta, err := g.prober.Probe(ctx, item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "generating", "probe source",
			"Failed to inspect source video", err)
	}
	frameRate := int(math.Round(meta.FPS))
	if frameRate <= 0 {
		frameRate = 25
	}

	workDir := filepath.Join(g.cfg.Paths.StagingDir, fmt.Sprintf("item-%d", item.ID), "generated")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "generating", "create staging directory",
			fmt.Sprintf("Cannot create %s", workDir), err)
	}

	orchestrator := NewOrchestrator(g.runner, adapters, Config{
		MaxAttempts:         g.cfg.Executor.StageMaxAttempts,
		PollInterval:        time.Duration(g.cfg.Executor.PollInterval) * time.Second,
		BaseDelay:           time.Duration(g.cfg.Executor.RetryBaseDelay) * time.Second,
		ImageCleanTimeout:   time.Duration(g.cfg.Executor.ImageCleanTimeout) * time.Second,
		VoiceCloneTimeout:   time.Duration(g.cfg.Executor.VoiceCloneTimeout) * time.Second,
		DigitalHumanTimeout: time.Duration(g.cfg.Executor.DigitalHumanTimeout) * time.Second,
	}, g.logger)

	g.updateProgress(ctx, item, "Rendering ad segment", 20)
	result, err := orchestrator.Run(ctx, Request{
		PortraitPath: item.KeyframePath,
		VoiceRefPath: item.VocalClipPath,
		Script:       item.AdScript,
		WorkDir:      workDir,
		FrameRate:    frameRate,
	})
	if err != nil {
		return err
	}
	item.AdVideoPath = result.VideoPath
	logger.Info(
		"ad segment rendered",
		logging.String("ad_video", result.VideoPath),
		logging.Bool("image_fallback", result.UsedImageFallback),
	)

	message := "Ad segment rendered"
	if result.UsedImageFallback {
		message = "Ad segment rendered (original portrait used)"
	}
	item.SetProgress("Generating", message, 100)
	return nil
}

// HealthCheck verifies the stage templates exist and the executor is
// configured. It does not call the executor.
func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(g.cfg.Executor.Host) == "" {
		return stage.Unhealthy("generator", "executor host not configured")
	}
	var missing []string
	for _, name := range []string{
		g.cfg.Executor.ImageCleanWorkflow,
		g.cfg.Executor.VoiceCloneWorkflow,
		g.cfg.Executor.DigitalHumanWorkflow,
	} {
		if _, err := os.Stat(g.cfg.WorkflowTemplatePath(name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return stage.Unhealthy("generator", "missing workflow templates: "+strings.Join(missing, ", "))
	}
	return stage.Healthy("generator")
}

func (g *Generator) loadAdapters() (Adapters, error) {
	load := func(name string) (*comfy.Template, error) {
		template, err := comfy.LoadTemplate(g.cfg.WorkflowTemplatePath(name))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "generating", "load workflow template",
				fmt.Sprintf("Workflow template %s unavailable", name), err)
		}
		return template, nil
	}

	imageClean, err := load(g.cfg.Executor.ImageCleanWorkflow)
	if err != nil {
		return Adapters{}, err
	}
	voiceClone, err := load(g.cfg.Executor.VoiceCloneWorkflow)
	if err != nil {
		return Adapters{}, err
	}
	digitalHuman, err := load(g.cfg.Executor.DigitalHumanWorkflow)
	if err != nil {
		return Adapters{}, err
	}
	return Adapters{
		ImageClean:   NewImageCleanAdapter(imageClean),
		VoiceClone:   NewVoiceCloneAdapter(voiceClone),
		DigitalHuman: NewDigitalHumanAdapter(digitalHuman),
	}, nil
}

func (g *Generator) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Generating", message, percent)
	if g.store == nil {
		return
	}
	if err := g.store.Update(ctx, item); err != nil {
		logging.WithContext(ctx, g.logger).Warn("failed to persist progress", logging.Error(err))
	}
}
