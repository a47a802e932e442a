package workflow

import (
	"context"
	"errors"
	"time"

	"adsplice/internal/logging"
	"adsplice/internal/notifications"
	"adsplice/internal/queue"
	"adsplice/internal/stage"
)

func (m *Manager) notifyStageDone(ctx context.Context, stg pipelineStage, item *queue.Item) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger.With(logging.String("component", "workflow-manager")))

	publish := func(event notifications.Event, payload notifications.Payload) {
		if err := m.notifier.Publish(ctx, event, payload); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Debug("daemon shutting down, could not send stage notification")
			} else {
				logger.Debug("stage notification failed",
					logging.String("event", string(event)),
					logging.Error(err),
				)
			}
		}
	}

	switch stg.doneStatus {
	case queue.StatusAnalyzed:
		publish(notifications.EventAnalysisComplete, notifications.Payload{
			"title":    item.VideoTitle,
			"duration": item.DurationSeconds,
		})
	case queue.StatusPlanned:
		decision, err := stage.ParseDecision(item.InsertionJSON)
		if err != nil {
			logger.Debug("insertion decision unavailable for notification", logging.Error(err))
			return
		}
		publish(notifications.EventPlanningComplete, notifications.Payload{
			"title":     item.VideoTitle,
			"timestamp": decision.Timestamp,
			"tier":      decision.SourceTier,
		})
	case queue.StatusGenerated:
		publish(notifications.EventGenerationComplete, notifications.Payload{
			"title": item.VideoTitle,
		})
	case queue.StatusCompleted:
		publish(notifications.EventCompositionComplete, notifications.Payload{
			"title":  item.VideoTitle,
			"output": item.FinalFile,
		})
		publish(notifications.EventProcessingComplete, notifications.Payload{
			"title": item.VideoTitle,
		})
	}
}

func (m *Manager) onItemStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			m.logger.Warn("queue stats unavailable for start notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	count := countActiveItems(stats)
	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": count}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue start notification")
		} else {
			m.logger.Debug("queue start notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue completion")
		} else {
			m.logger.Warn("queue stats unavailable for completion notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if active := countActiveItems(stats); active > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	processed := stats[queue.StatusCompleted]
	failed := stats[queue.StatusFailed]
	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": processed,
		"failed":    failed,
		"duration":  duration,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue completion notification")
		} else {
			m.logger.Debug("queue completion notification failed", logging.Error(err))
		}
	}
}

// countActiveItems counts items that still have pipeline work ahead of them.
// Completed, failed, and review items are all terminal for the daemon.
func countActiveItems(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		if !queue.IsTerminal(status) {
			total += count
		}
	}
	return total
}
