package preflight

import (
	"context"

	"bookloom/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are reported but never block a worker.
	Optional bool
}

// Options selects the checks RunAll performs.
type Options struct {
	Stores   []NamedStore
	Provider bool // contact the generation provider
}

// RunAll executes the checks applicable to cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, store := range opts.Stores {
		results = append(results, CheckStore(ctx, store))
	}
	results = append(results, CheckProviderKey(cfg))
	if opts.Provider && cfg.Provider.APIKey != "" {
		results = append(results, CheckProvider(ctx, cfg))
	}
	if cfg.Notify.NtfyTopic != "" {
		results = append(results, Result{Name: "Notifications", Passed: true, Detail: cfg.Notify.NtfyTopic, Optional: true})
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
