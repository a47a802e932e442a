package generation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"adsplice/internal/logging"
	"adsplice/internal/services"
	"adsplice/internal/services/comfy"
)

// JobRunner is the slice of the executor client the orchestrator needs.
type JobRunner interface {
	UploadAsset(ctx context.Context, path, subfolder string) (comfy.AssetRef, error)
	Submit(ctx context.Context, req comfy.JobRequest) (*comfy.JobHandle, error)
	WaitUntilTerminal(ctx context.Context, handle *comfy.JobHandle, timeout, pollInterval time.Duration) (comfy.JobStatus, error)
	FetchAsset(ctx context.Context, ref comfy.AssetRef, destPath string) error
}

// StageResult records the outcome of one generation stage.
type StageResult struct {
	Stage        StageID
	Succeeded    bool
	Asset        comfy.AssetRef
	UsedFallback bool
	Attempts     int
}

// Request carries everything the three generation stages consume.
type Request struct {
	PortraitPath string
	VoiceRefPath string
	Script       string
	WorkDir      string
	FrameRate    int
}

// Result is the complete generated ad asset bundle.
type Result struct {
	VideoPath         string
	CleanImagePath    string
	ClonedAudioPath   string
	UsedImageFallback bool
	Stages            []StageResult
}

// Config holds the per-stage policy knobs. Attempt counts and timeouts
// are business constants; their defaults match long-observed executor
// behavior and should only be changed deliberately.
type Config struct {
	MaxAttempts  int
	PollInterval time.Duration
	BaseDelay    time.Duration

	ImageCleanTimeout   time.Duration
	VoiceCloneTimeout   time.Duration
	DigitalHumanTimeout time.Duration
}

// DefaultConfig returns the stock per-stage policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         2,
		PollInterval:        3 * time.Second,
		BaseDelay:           2 * time.Second,
		ImageCleanTimeout:   300 * time.Second,
		VoiceCloneTimeout:   300 * time.Second,
		DigitalHumanTimeout: 600 * time.Second,
	}
}

// Adapters groups the three stage adapters in execution order.
type Adapters struct {
	ImageClean   StageAdapter
	VoiceClone   StageAdapter
	DigitalHuman StageAdapter
}

// Orchestrator sequences ImageClean, VoiceClone, and DigitalHuman.
// ImageClean failures fall back to the original portrait; VoiceClone and
// DigitalHuman failures abort the run. Stages execute strictly in order
// because each consumes the previous stage's artifact.
type Orchestrator struct {
	runner   JobRunner
	adapters Adapters
	cfg      Config
	logger   *slog.Logger
	sleeper  func(time.Duration)
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithSleeper overrides how inter-attempt sleeps are performed.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *Orchestrator) {
		o.sleeper = sleeper
	}
}

// NewOrchestrator wires the runner and adapters under the given policy.
func NewOrchestrator(runner JobRunner, adapters Adapters, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	orchestrator := &Orchestrator{runner: runner, adapters: adapters, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator
}

// Run executes the full generation sequence and returns the asset
// bundle, or the first fatal stage failure. No stage after a fatal
// failure is invoked.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	result := Result{CleanImagePath: req.PortraitPath}

	cleanResult := o.runStage(ctx, o.adapters.ImageClean, StageInput{}, stageIO{
		uploadImage: req.PortraitPath,
		destPath:    filepath.Join(req.WorkDir, "portrait_clean.png"),
		timeout:     o.cfg.ImageCleanTimeout,
	})
	result.Stages = append(result.Stages, cleanResult.StageResult)
	if cleanResult.Succeeded {
		result.CleanImagePath = cleanResult.localPath
	} else {
		// Non-fatal: continue with the original portrait.
		result.UsedImageFallback = true
		result.Stages[len(result.Stages)-1].UsedFallback = true
		o.logger.Warn("image clean failed, falling back to original portrait",
			logging.String(logging.FieldStage, string(StageImageClean)),
			logging.Error(cleanResult.err))
	}

	voiceResult := o.runStage(ctx, o.adapters.VoiceClone, StageInput{Script: req.Script}, stageIO{
		uploadAudio: req.VoiceRefPath,
		destPath:    filepath.Join(req.WorkDir, "ad_voice.wav"),
		timeout:     o.cfg.VoiceCloneTimeout,
	})
	result.Stages = append(result.Stages, voiceResult.StageResult)
	if !voiceResult.Succeeded {
		return result, services.Wrap(services.ErrExternalTool, "generate", string(StageVoiceClone), "voice cloning failed", voiceResult.err)
	}
	result.ClonedAudioPath = voiceResult.localPath

	humanResult := o.runStage(ctx, o.adapters.DigitalHuman, StageInput{FrameRate: req.FrameRate}, stageIO{
		uploadImage: result.CleanImagePath,
		uploadAudio: result.ClonedAudioPath,
		destPath:    filepath.Join(req.WorkDir, "ad_video.mp4"),
		timeout:     o.cfg.DigitalHumanTimeout,
	})
	result.Stages = append(result.Stages, humanResult.StageResult)
	if !humanResult.Succeeded {
		return result, services.Wrap(services.ErrExternalTool, "generate", string(StageDigitalHuman), "digital human rendering failed", humanResult.err)
	}
	result.VideoPath = humanResult.localPath

	return result, nil
}

type stageIO struct {
	uploadImage string
	uploadAudio string
	destPath    string
	timeout     time.Duration
}

type stageOutcome struct {
	StageResult
	localPath string
	err       error
}

// runStage performs up to MaxAttempts full upload→submit→wait→extract→
// fetch cycles for one stage. Attempts are sequential; the inter-attempt
// delay grows strictly with the attempt number.
func (o *Orchestrator) runStage(ctx context.Context, adapter StageAdapter, input StageInput, io stageIO) stageOutcome {
	outcome := stageOutcome{StageResult: StageResult{Stage: adapter.ID()}}

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		outcome.Attempts = attempt
		asset, localPath, err := o.attemptStage(ctx, adapter, input, io)
		if err == nil {
			outcome.Succeeded = true
			outcome.Asset = asset
			outcome.localPath = localPath
			return outcome
		}
		outcome.err = err

		if !services.Retryable(err) || ctx.Err() != nil {
			break
		}
		o.logger.Warn("stage attempt failed",
			logging.String(logging.FieldStage, string(adapter.ID())),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if attempt < o.cfg.MaxAttempts {
			if sleepErr := o.sleep(ctx, o.retryDelay(attempt)); sleepErr != nil {
				outcome.err = sleepErr
				break
			}
		}
	}
	return outcome
}

func (o *Orchestrator) attemptStage(ctx context.Context, adapter StageAdapter, input StageInput, io stageIO) (comfy.AssetRef, string, error) {
	if io.uploadImage != "" {
		ref, err := o.runner.UploadAsset(ctx, io.uploadImage, "")
		if err != nil {
			return comfy.AssetRef{}, "", fmt.Errorf("upload image: %w", err)
		}
		input.ImageName = ref.Name
	}
	if io.uploadAudio != "" {
		ref, err := o.runner.UploadAsset(ctx, io.uploadAudio, "")
		if err != nil {
			return comfy.AssetRef{}, "", fmt.Errorf("upload audio: %w", err)
		}
		input.AudioName = ref.Name
	}

	request, err := adapter.BuildRequest(input)
	if err != nil {
		return comfy.AssetRef{}, "", err
	}
	handle, err := o.runner.Submit(ctx, request)
	if err != nil {
		return comfy.AssetRef{}, "", fmt.Errorf("submit: %w", err)
	}
	status, err := o.runner.WaitUntilTerminal(ctx, handle, io.timeout, o.cfg.PollInterval)
	if err != nil {
		return comfy.AssetRef{}, "", fmt.Errorf("wait: %w", err)
	}
	if status.State == comfy.StateFailed {
		return comfy.AssetRef{}, "", fmt.Errorf("remote job failed: %v", status.Messages)
	}
	asset, err := adapter.Extract(status)
	if err != nil {
		return comfy.AssetRef{}, "", err
	}
	if err := o.runner.FetchAsset(ctx, asset, io.destPath); err != nil {
		return comfy.AssetRef{}, "", fmt.Errorf("fetch result: %w", err)
	}
	return asset, io.destPath, nil
}

// retryDelay is arithmetic in the attempt number, which keeps the
// schedule strictly increasing without growing unbounded across the
// small fixed attempt budget.
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	return o.cfg.BaseDelay * time.Duration(attempt)
}

func (o *Orchestrator) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if o.sleeper != nil {
		o.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
