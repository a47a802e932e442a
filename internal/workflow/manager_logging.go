package workflow

import (
	"context"
	"log/slog"

	"adsplice/internal/logging"
	"adsplice/internal/queue"
	"adsplice/internal/services"
)

func (m *Manager) runnerLogger() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger.With(logging.String("component", "workflow-runner"))
}

// stageLogger scopes the manager logger to one item. The item id attribute is
// skipped when the context already carries it, so it is not logged twice.
func (m *Manager) stageLogger(ctx context.Context, item *queue.Item) *slog.Logger {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.WithContext(ctx, base)
	if item == nil {
		return logger
	}
	if _, ok := services.ItemIDFromContext(ctx); ok {
		return logger
	}
	return logger.With(logging.Int64(logging.FieldItemID, item.ID))
}

func withStageContext(ctx context.Context, stageName string, item *queue.Item, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if item != nil {
		ctx = services.WithItemID(ctx, item.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
