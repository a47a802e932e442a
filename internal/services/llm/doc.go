// Package llm provides an OpenRouter chat client for video content
// analysis and ad copy generation.
//
// This package is used by:
//   - Planning stage: analyze the transcript and rank insertion point
//     candidates, then write the ad line for the chosen point
//   - Preflight: verify the API key and model before accepting work
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.AnalyzeContent: transcript in, VideoAnalysis with ranked
// insertion candidates out. Candidates inside the avoid margins are
// dropped before the caller sees them.
// Client.GenerateAdScript: video context plus product facts in, one
// spoken ad line out, falling back to the catalog template when the
// model's line is too short.
// Client.CompleteJSON / Client.CompleteText: raw completion calls for
// callers with their own prompts.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default).
// Context cancellation aborts retries immediately.
//
// # Fallback
//
// If the LLM is unavailable or returns an error, callers should fall back
// to the ad catalog's template copy rather than ship nothing.
package llm
