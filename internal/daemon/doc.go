// Package daemon coordinates the long-running Adsplice process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon exposes queue maintenance helpers, manages manual video
// ingestion, emits dependency health summaries, and serves a small HTTP
// status API when configured.
//
// Keep orchestration logic here: individual pipeline stages should live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
