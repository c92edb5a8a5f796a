package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/adapters/reaper"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/observability/statsd"
)

// ReaperConfig contains configuration for the reaper service.
type ReaperConfig struct {
	Store   core.JobEvictor
	Pruner  core.ArchivePruner
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Store:   cfg.Store,
		Pruner:  cfg.Pruner,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
