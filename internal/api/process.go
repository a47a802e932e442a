package api

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"adsplice/internal/analysis"
	"adsplice/internal/composition"
	"adsplice/internal/config"
	"adsplice/internal/generation"
	"adsplice/internal/logging"
	"adsplice/internal/notifications"
	"adsplice/internal/planning"
	"adsplice/internal/queue"
	"adsplice/internal/stageexec"
)

// ProcessStages bundles the handlers the one-shot workflow drives. Tests
// inject scripted handlers here; production callers leave it nil and get the
// real pipeline.
type ProcessStages struct {
	Analyzer  stageexec.Handler
	Planner   stageexec.Handler
	Generator stageexec.Handler
	Splicer   stageexec.Handler
}

// ProcessRequest describes a single video to run through the pipeline
// synchronously, without a daemon.
type ProcessRequest struct {
	Config     *config.Config
	Logger     *slog.Logger
	SourcePath string
	Title      string
	Stages     *ProcessStages
	Notifier   notifications.Service
}

// ProcessResult reports where the item landed after the run.
type ProcessResult struct {
	Item           *queue.Item
	Outcome        string
	OutcomeMessage string
}

type processStep struct {
	name       string
	handler    stageexec.Handler
	start      queue.Status
	processing queue.Status
	done       queue.Status
}

// ProcessFile enqueues sourcePath (or resumes its existing queue item) and
// runs every remaining stage in order. The stage error, if any, is reflected
// in the returned item rather than the error value, matching daemon behavior.
func ProcessFile(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	if req.Config == nil {
		return ProcessResult{}, fmt.Errorf("configuration is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.Open(filepath.Join(req.Config.Paths.StagingDir, "queue.db"))
	if err != nil {
		return ProcessResult{}, fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	item, err := resumeOrEnqueue(ctx, store, req.SourcePath, req.Title)
	if err != nil {
		return ProcessResult{}, err
	}

	stages := req.Stages
	if stages == nil {
		stages = &ProcessStages{
			Analyzer:  analysis.NewAnalyzer(req.Config, store, logger),
			Planner:   planning.NewPlanner(req.Config, store, logger),
			Generator: generation.NewGenerator(req.Config, store, logger),
			Splicer:   composition.NewSplicer(req.Config, store, logger),
		}
	}

	for _, step := range pipelineSteps(stages) {
		if queue.IsTerminal(item.Status) {
			break
		}
		if item.Status != step.start {
			continue
		}
		runErr := stageexec.Run(ctx, stageexec.Options{
			Logger:     logger,
			Store:      store,
			Notifier:   req.Notifier,
			Handler:    step.handler,
			StageName:  step.name,
			Processing: step.processing,
			Done:       step.done,
			Item:       item,
		})
		if runErr != nil {
			// Failure and review transitions are already persisted; stop the
			// pipeline and let the assessment describe the outcome.
			break
		}
	}

	refreshed, err := store.GetByID(ctx, item.ID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("reload item: %w", err)
	}
	if refreshed != nil {
		item = refreshed
	}

	result := ProcessResult{Item: item}
	result.Outcome, result.OutcomeMessage = assessProcessed(item)
	return result, nil
}

func resumeOrEnqueue(ctx context.Context, store *queue.Store, sourcePath, title string) (*queue.Item, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, fmt.Errorf("source path is required")
	}

	existing, err := store.FindBySourcePath(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("look up existing item: %w", err)
	}
	if existing != nil {
		if queue.IsProcessingStatus(existing.Status) {
			return nil, fmt.Errorf("item #%d for %s is already processing (status %s); is a daemon running?", existing.ID, sourcePath, existing.Status)
		}
		return existing, nil
	}
	item, err := store.NewVideo(ctx, sourcePath, title)
	if err != nil {
		return nil, fmt.Errorf("enqueue video: %w", err)
	}
	return item, nil
}

func pipelineSteps(stages *ProcessStages) []processStep {
	return []processStep{
		{name: "analyzer", handler: stages.Analyzer, start: queue.StatusPending, processing: queue.StatusAnalyzing, done: queue.StatusAnalyzed},
		{name: "planner", handler: stages.Planner, start: queue.StatusAnalyzed, processing: queue.StatusPlanning, done: queue.StatusPlanned},
		{name: "generator", handler: stages.Generator, start: queue.StatusPlanned, processing: queue.StatusGenerating, done: queue.StatusGenerated},
		{name: "splicer", handler: stages.Splicer, start: queue.StatusGenerated, processing: queue.StatusComposing, done: queue.StatusCompleted},
	}
}

func assessProcessed(item *queue.Item) (outcome, message string) {
	if item == nil {
		return "failed", "Processing failed. Check the logs for details."
	}
	switch item.Status {
	case queue.StatusCompleted:
		message = "Processing complete."
		if strings.TrimSpace(item.FinalFile) != "" {
			message = fmt.Sprintf("Processing complete: %s", item.FinalFile)
		}
		return "completed", message
	case queue.StatusReview:
		reason := strings.TrimSpace(item.ReviewReason)
		if reason == "" {
			reason = "manual review required"
		}
		return "review", fmt.Sprintf("Needs review: %s", reason)
	case queue.StatusFailed:
		detail := strings.TrimSpace(item.ErrorMessage)
		if detail == "" {
			detail = "check the logs for details"
		}
		return "failed", fmt.Sprintf("Processing failed: %s", detail)
	default:
		return "incomplete", fmt.Sprintf("Stopped at status %s", item.Status)
	}
}
