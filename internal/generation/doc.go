// Package generation runs the three remote stages that turn a portrait,
// a voice reference, and a script into a finished spoken-ad video.
//
// Each stage is a StageAdapter that binds inputs into a workflow graph
// and extracts the produced asset. The Orchestrator runs the adapters in
// fixed order with a bounded per-stage attempt budget: a failed image
// clean falls back to the original portrait, while voice clone or
// digital human failures abort the run before any later stage starts.
package generation
