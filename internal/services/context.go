package services

import "context"

// Context keys are unexported struct types so no other package can
// collide with them.
type (
	itemIDKey    struct{}
	stageNameKey struct{}
	requestIDKey struct{}
)

// WithItemID tags ctx with the queue item being processed. Every log
// line emitted under this context picks up the identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey{}, id)
}

// ItemIDFromContext reports the queue item identifier carried by ctx.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(itemIDKey{}).(int64)
	return id, ok
}

// WithStage tags ctx with the pipeline stage currently running. An
// empty stage leaves ctx untouched.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageNameKey{}, stage)
}

// StageFromContext reports the stage name carried by ctx.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageNameKey{}).(string)
	return stage, ok && stage != ""
}

// WithRequestID tags ctx with a correlation identifier for one pass of
// a queue item through a stage. An empty id leaves ctx untouched.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext reports the correlation identifier carried by ctx.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
