package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"adsplice/internal/ads"
	"adsplice/internal/asr"
	"adsplice/internal/config"
	"adsplice/internal/insertion"
	"adsplice/internal/logging"
	"adsplice/internal/media"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/services/llm"
	"adsplice/internal/speaker"
	"adsplice/internal/stage"
)

const (
	candidateCount   = 3
	contextSegsBack  = 3
	contextSegsAhead = 2
)

// ContentModel is the LLM surface planning depends on.
type ContentModel interface {
	AnalyzeContent(ctx context.Context, req llm.AnalysisRequest) (llm.VideoAnalysis, error)
	GenerateAdScript(ctx context.Context, req llm.ScriptRequest) (string, error)
}

// MediaService describes the ffmpeg-backed operations planning needs.
type MediaService interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
	ExtractFrame(ctx context.Context, source string, timestamp float64, dest string) error
	ExtractFrames(ctx context.Context, source string, startSec, endSec float64, count int, destDir string) ([]media.FrameSample, error)
}

// SpeakerProfiler summarizes speaker presence across the source video.
type SpeakerProfiler interface {
	Profile(ctx context.Context, videoPath string, duration float64, frameWidth, frameHeight int, workDir string) (speaker.Profile, error)
}

// Planner implements the planning stage. It turns a transcript into a
// committed insertion decision, a keyframe for generation, and an ad
// script matched to the video's theme.
type Planner struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	model    ContentModel
	media    MediaService
	profiler SpeakerProfiler
	detector speaker.Detector
	selector *insertion.Selector
}

// NewPlanner constructs the planning stage handler using default dependencies.
func NewPlanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Planner {
	settings := cfg.GetLLM()
	model := llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	})
	mediaService := media.NewService(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	detector := speaker.NewCLIDetector(cfg.FaceDetectBinary())
	profiler := speaker.NewProfiler(mediaService, detector, logger)
	return NewPlannerWithDependencies(cfg, store, logger, model, mediaService, profiler, detector)
}

// NewPlannerWithDependencies allows injecting collaborators (used in tests).
func NewPlannerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, model ContentModel, mediaService MediaService, profiler SpeakerProfiler, detector speaker.Detector) *Planner {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "planner"))
	}
	return &Planner{
		cfg:      cfg,
		store:    store,
		logger:   stageLogger,
		model:    model,
		media:    mediaService,
		profiler: profiler,
		detector: detector,
		selector: insertion.NewSelector(cfg.Video.SemanticWeight, cfg.Video.FaceWeight),
	}
}

// SetLogger updates the logger used during stage execution.
func (p *Planner) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	p.logger = logger.With(logging.String("component", "planner"))
}

func (p *Planner) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)
	if strings.TrimSpace(item.TranscriptPath) == "" {
		return services.Wrap(services.ErrValidation, "planning", "validate inputs",
			"No transcript recorded; run analysis before planning", nil)
	}
	if _, err := os.Stat(item.TranscriptPath); err != nil {
		return services.Wrap(services.ErrNotFound, "planning", "validate inputs",
			fmt.Sprintf("Transcript missing: %s", item.TranscriptPath), err)
	}
	if item.DurationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "planning", "validate inputs",
			"Queue item has no probed duration; rerun analysis", nil)
	}
	item.SetProgress("Planning", "Preparing insertion planning", 0)
	logger.Info(
		"starting planning preparation",
		logging.String("video_title", strings.TrimSpace(item.VideoTitle)),
		logging.String("transcript", strings.TrimSpace(item.TranscriptPath)),
	)
	return nil
}

func (p *Planner) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)

	transcript, err := asr.LoadResult(item.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "planning", "load transcript",
			"Transcript unreadable; rerun analysis", err)
	}

	meta, err := p.media.Probe(ctx, item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "planning", "probe source",
			"Failed to inspect source video", err)
	}

	p.updateProgress(ctx, item, "Analyzing content", 15)
	analysis, err := p.model.AnalyzeContent(ctx, llm.AnalysisRequest{
		Segments:      toLLMSegments(transcript.Segments),
		VideoDuration: item.DurationSeconds,
		AvoidStart:    p.cfg.Video.AvoidStartSeconds,
		AvoidEnd:      p.cfg.Video.AvoidEndSeconds,
		NumCandidates: candidateCount,
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "planning", "analyze content",
			"Content analysis failed", err)
	}
	item.VideoTheme = analysis.Theme
	logger.Info(
		"content analysis complete",
		logging.String("theme", analysis.Theme),
		logging.String("category", analysis.Category),
		logging.Int("candidates", len(analysis.InsertionPoints)),
	)

	workDir, err := p.itemWorkDir(item)
	if err != nil {
		return err
	}

	p.updateProgress(ctx, item, "Profiling speaker presence", 35)
	profile, err := p.profiler.Profile(ctx, item.SourcePath, item.DurationSeconds, meta.Width, meta.Height, filepath.Join(workDir, "profile"))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "planning", "profile speaker",
			"Speaker profiling failed", err)
	}
	logger.Info(
		"speaker profile built",
		logging.Bool("single_speaker", profile.SingleSpeaker),
		logging.Float64("appearance_ratio", profile.AppearanceRatio),
		logging.Float64("best_frame", profile.BestFrameTimestamp),
	)

	p.updateProgress(ctx, item, "Scoring candidate frames", 55)
	candidates := p.scoreCandidates(ctx, item, analysis.InsertionPoints, meta, workDir)

	decision, err := p.selector.Select(candidates, insertion.SpeakerProfile{
		HasPrimarySpeaker:   profile.SingleSpeaker,
		BestFrameTimestamp:  profile.BestFrameTimestamp,
		BestFrameConfidence: profile.Confidence,
	})
	if err != nil {
		if errors.Is(err, insertion.ErrNoInsertionPoint) {
			return services.Wrap(services.ErrValidation, "planning", "select insertion point",
				err.Error(), nil)
		}
		return services.Wrap(services.ErrTransient, "planning", "select insertion point", "", err)
	}
	encoded, err := stage.EncodeDecision(decision)
	if err != nil {
		return err
	}
	item.InsertionJSON = encoded
	logger.Info(
		"insertion point committed",
		logging.Float64("timestamp", decision.Timestamp),
		logging.String("tier", string(decision.SourceTier)),
		logging.Float64("combined_score", decision.CombinedScore),
	)

	p.updateProgress(ctx, item, "Extracting keyframe", 70)
	keyframePath := filepath.Join(workDir, "keyframe.jpg")
	if err := p.media.ExtractFrame(ctx, item.SourcePath, decision.Timestamp, keyframePath); err != nil {
		return services.Wrap(services.ErrExternalTool, "planning", "extract keyframe",
			"Failed to extract the presenter keyframe", err)
	}
	item.KeyframePath = keyframePath

	p.updateProgress(ctx, item, "Writing ad script", 85)
	script, err := p.writeScript(ctx, analysis, transcript, decision)
	if err != nil {
		return err
	}
	item.AdScript = script

	item.SetProgress("Planning", "Insertion plan committed", 100)
	return nil
}

// HealthCheck verifies planning configuration without calling the model.
func (p *Planner) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(p.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy("planner", "llm api_key not configured")
	}
	if _, err := ads.Load(p.cfg.Ads.CatalogPath); err != nil {
		return stage.Unhealthy("planner", "ad catalog unavailable: "+err.Error())
	}
	if _, err := exec.LookPath(p.cfg.FaceDetectBinary()); err != nil {
		return stage.Unhealthy("planner", "missing binary: "+p.cfg.FaceDetectBinary())
	}
	return stage.Healthy("planner")
}

// scoreCandidates extracts one frame per candidate and annotates it with
// a face score. Detection failures leave the candidate unscored rather
// than failing the stage.
func (p *Planner) scoreCandidates(ctx context.Context, item *queue.Item, points []llm.InsertionCandidate, meta media.Metadata, workDir string) []insertion.Candidate {
	logger := logging.WithContext(ctx, p.logger)
	frameDir := filepath.Join(workDir, "candidates")

	candidates := make([]insertion.Candidate, 0, len(points))
	for i, point := range points {
		candidate := insertion.Candidate{
			Timestamp:     point.Time,
			SemanticRank:  point.Priority,
			Justification: strings.TrimSpace(point.Reason),
		}
		framePath := filepath.Join(frameDir, fmt.Sprintf("candidate_%02d.jpg", i))
		if err := p.media.ExtractFrame(ctx, item.SourcePath, point.Time, framePath); err != nil {
			logger.Warn("candidate frame extraction failed",
				logging.Float64("timestamp", point.Time), logging.Error(err))
			candidates = append(candidates, candidate)
			continue
		}
		faces, err := p.detector.Detect(ctx, framePath)
		if err != nil {
			logger.Warn("candidate face detection failed",
				logging.Float64("timestamp", point.Time), logging.Error(err))
			candidates = append(candidates, candidate)
			continue
		}
		if len(faces) > 0 {
			candidate.FaceScore = speaker.ScoreFaces(faces, meta.Width, meta.Height)
			candidate.HasFaceScore = true
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// writeScript picks the ad for the analyzed theme and asks the model for
// a spoken line that fits the insertion point's surrounding context.
func (p *Planner) writeScript(ctx context.Context, analysis llm.VideoAnalysis, transcript asr.Result, decision insertion.Decision) (string, error) {
	catalog, err := ads.Load(p.cfg.Ads.CatalogPath)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "planning", "load ad catalog", "", err)
	}
	theme := analysis.Theme
	if strings.TrimSpace(theme) == "" {
		theme = p.cfg.Ads.DefaultTheme
	}
	ad, err := catalog.SelectForTheme(theme)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "planning", "select ad",
			"No enabled advertisement matches this video", err)
	}

	req := llm.ScriptRequest{
		Theme:         analysis.Theme,
		Category:      analysis.Category,
		Tone:          analysis.Tone,
		Product:       ad.Product,
		SellingPoints: ad.SellingPoints,
		Template:      ad.Template(analysis.Category),
	}
	if candidate, ok := candidateAt(analysis.InsertionPoints, decision.Timestamp); ok {
		req.ContextBefore = candidate.ContextBefore
		req.ContextAfter = candidate.ContextAfter
		req.TransitionHint = candidate.TransitionHint
	} else {
		req.ContextBefore, req.ContextAfter = transcript.ContextAround(decision.Timestamp, contextSegsBack, contextSegsAhead)
	}

	script, err := p.model.GenerateAdScript(ctx, req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "planning", "generate script",
			"Ad script generation failed", err)
	}
	return script, nil
}

func (p *Planner) itemWorkDir(item *queue.Item) (string, error) {
	dir := filepath.Join(p.cfg.Paths.StagingDir, fmt.Sprintf("item-%d", item.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "planning", "create staging directory",
			fmt.Sprintf("Cannot create %s", dir), err)
	}
	return dir, nil
}

func (p *Planner) updateProgress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Planning", message, percent)
	if p.store == nil {
		return
	}
	if err := p.store.Update(ctx, item); err != nil {
		logging.WithContext(ctx, p.logger).Warn("failed to persist progress", logging.Error(err))
	}
}

func toLLMSegments(segments []asr.Segment) []llm.TranscriptSegment {
	out := make([]llm.TranscriptSegment, 0, len(segments))
	for _, segment := range segments {
		out = append(out, llm.TranscriptSegment{Start: segment.Start, End: segment.End, Text: segment.Text})
	}
	return out
}

func candidateAt(points []llm.InsertionCandidate, timestamp float64) (llm.InsertionCandidate, bool) {
	for _, point := range points {
		if point.Time == timestamp {
			return point, true
		}
	}
	return llm.InsertionCandidate{}, false
}
