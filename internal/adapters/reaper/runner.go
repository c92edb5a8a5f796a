// Package reaper provides adapters for running the job reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/observability/statsd"
	"github.com/target/selfheal/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store  core.JobEvictor
	Config config.ReaperConfig
	Logger *slog.Logger

	// Pruner is set when the configured archive supports age-based pruning.
	Pruner  core.ArchivePruner
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:   opts.Store,
		Pruner:  opts.Pruner,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
