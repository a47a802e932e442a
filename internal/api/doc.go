// Package api defines transport-friendly representations of queue and daemon
// state shared by the HTTP status API and the IPC layer.
//
// Keep conversions between queue models and wire DTOs here so the CLI, the
// daemon HTTP endpoints, and the IPC protocol stay consistent.
package api
