package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adsplice/internal/logging"
	"adsplice/internal/notifications"
	"adsplice/internal/queue"
	"adsplice/internal/services"
	"adsplice/internal/stage"
)

// Handler is the stage contract used by the one-shot runner.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
}

// Options controls a single stage execution outside the daemon workflow.
type Options struct {
	Logger     *slog.Logger
	Store      *queue.Store
	Notifier   notifications.Service
	Handler    Handler
	StageName  string
	Processing queue.Status
	Done       queue.Status
	Item       *queue.Item
}

func (o Options) validate() error {
	if o.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", o.StageName)
	}
	if o.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if o.Item == nil {
		return fmt.Errorf("queue item is required")
	}
	return nil
}

// Run drives one stage through the same queue transitions the daemon applies:
// processing status on entry, done status on success, failed or review on
// error. Used by CLI workflows that process a file without a daemon.
func Run(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	r := runner{opts: opts}
	r.ctx = logging.WithStage(ctx, opts.StageName)
	r.logger = logging.WithContext(r.ctx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(r.logger)
	}
	return r.run()
}

type runner struct {
	opts   Options
	ctx    context.Context
	logger *slog.Logger
}

func (r *runner) run() error {
	item := r.opts.Item
	r.logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(r.opts.Processing)),
		logging.String("video_title", strings.TrimSpace(item.VideoTitle)),
		logging.String("source_file", strings.TrimSpace(item.SourcePath)),
	)

	markProcessing(item, r.opts.Processing)
	if err := r.opts.Store.Update(r.ctx, item); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := r.opts.Handler.Prepare(r.ctx, item); err != nil {
		return r.fail(err)
	}
	if err := r.opts.Store.Update(r.ctx, item); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}
	if err := r.opts.Handler.Execute(r.ctx, item); err != nil {
		return r.fail(err)
	}
	return r.finish()
}

func (r *runner) finish() error {
	item := r.opts.Item
	if item.Status == r.opts.Processing || item.Status == "" {
		item.Status = r.opts.Done
	}
	item.LastHeartbeat = nil
	if err := r.opts.Store.Update(r.ctx, item); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	r.logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.String("progress_stage", strings.TrimSpace(item.ProgressStage)),
		logging.String("progress_message", strings.TrimSpace(item.ProgressMessage)),
	)
	return nil
}

// fail persists the failure transition and notifies, then returns the original
// stage error so callers can inspect it.
func (r *runner) fail(stageErr error) error {
	item := r.opts.Item
	message := failureMessage(stageErr)

	resolved := services.FailureStatus(stageErr)
	if resolved == queue.StatusReview {
		item.SetReview(message)
	} else {
		item.SetFailed(message)
	}

	r.logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if err := r.opts.Store.Update(r.ctx, item); err != nil {
		r.logger.Error("failed to persist stage failure", logging.Error(err))
	}

	r.notifyFailure(resolved, message, stageErr)
	return stageErr
}

func (r *runner) notifyFailure(resolved queue.Status, message string, stageErr error) {
	if r.opts.Notifier == nil || stageErr == nil {
		return
	}
	item := r.opts.Item
	var err error
	if resolved == queue.StatusReview {
		err = r.opts.Notifier.Publish(r.ctx, notifications.EventReviewRequired, notifications.Payload{
			"title":  item.VideoTitle,
			"reason": message,
		})
	} else {
		err = r.opts.Notifier.Publish(r.ctx, notifications.EventError, notifications.Payload{
			"error":   stageErr,
			"context": fmt.Sprintf("%s (item #%d)", r.opts.StageName, item.ID),
		})
	}
	if err != nil {
		r.logger.Debug("stage failure notification failed", logging.Error(err))
	}
}

func failureMessage(stageErr error) string {
	if stageErr == nil {
		return "stage failed"
	}
	if message := strings.TrimSpace(services.Details(stageErr).Message); message != "" {
		return message
	}
	if message := strings.TrimSpace(stageErr.Error()); message != "" {
		return message
	}
	return "stage failed"
}

func markProcessing(item *queue.Item, processing queue.Status) {
	now := time.Now().UTC()
	item.Status = processing
	if item.ProgressStage == "" {
		item.ProgressStage = processing.Label()
	}
	if item.ProgressMessage == "" {
		item.ProgressMessage = fmt.Sprintf("%s started", processing.Label())
	}
	item.ProgressPercent = 0
	item.ErrorMessage = ""
	item.LastHeartbeat = &now
}
