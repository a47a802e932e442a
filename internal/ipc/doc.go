// Package ipc carries the JSON-RPC protocol between the CLI and a running
// daemon over a unix socket.
//
// The request/response types here are the wire contract; the server side
// registers them against a Daemon, and Client wraps each method with a dial
// timeout so commands fail fast when no daemon is listening. New RPC
// endpoints should reuse these DTO conventions to keep old CLIs compatible.
package ipc
