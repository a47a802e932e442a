package preflight

import (
	"context"

	"adsplice/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	results = append(results, CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir, minFreeBytes))

	if cfg.Executor.Host != "" {
		results = append(results, CheckExecutor(ctx, cfg.ExecutorBaseURL()))
	}
	results = append(results, CheckLLM(ctx, "LLM", cfg.GetLLM()))

	return results
}
