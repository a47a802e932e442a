// Package workflow advances queue items through the ad insertion pipeline.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// items into registered stage handlers (analyzer, planner, generator, splicer)
// while capturing progress and failure metadata. It also aggregates queue
// stats, calls stage health checks, and emits notifications when individual
// stages finish and when queue processing starts or completes.
//
// The pipeline is strictly sequential per item: pending videos are analyzed,
// analyzed videos are planned, planned videos get their ad segment generated,
// and generated videos are spliced into the final output. Add new lifecycle
// stages by extending StageSet, updating the queue status enums, and teaching
// the manager how to transition items; this package is the authoritative home
// for that coordination logic.
package workflow
