package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/core"
	obserrors "github.com/target/selfheal/internal/observability/errors"
	"github.com/target/selfheal/internal/observability/metrics"
	"github.com/target/selfheal/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store   core.JobEvictor     // Required: live job store
	Pruner  core.ArchivePruner  // Optional: archive that supports age-based pruning
	Config  config.ReaperConfig // Required: reaper configuration
	Now     func() time.Time    // Optional: clock, defaults to time.Now
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService keeps finished heal jobs from accumulating.
//
// Each sweep:
// - Evicts done/error jobs older than JobRetention from the live store.
// - Prunes archived snapshots older than ArchiveRetention, when an archive pruner is wired.
type ReaperService struct {
	store   core.JobEvictor
	pruner  core.ArchivePruner
	config  config.ReaperConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobEvictor is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"job_retention", opts.Config.JobRetention,
			"archive_retention", opts.Config.ArchiveRetention,
			"archive_pruning", opts.Pruner != nil,
		)
	}

	return &ReaperService{
		store:   opts.Store,
		pruner:  opts.Pruner,
		config:  opts.Config,
		now:     now,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		//nolint:forbidigo // Must* constructor intentionally panics on invalid wiring.
		panic(fmt.Errorf("failed to create ReaperService: %w", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Spread sweeps when several instances start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sweep(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// Sweep performs one eviction and pruning pass. Failures of one step do not
// prevent the next.
func (s *ReaperService) Sweep(ctx context.Context) error {
	start := s.now()
	steps := []sweepStep{
		{operation: "evict_terminal", fn: s.evictTerminal},
	}
	if s.pruner != nil && s.config.ArchiveRetention > 0 {
		steps = append(steps, sweepStep{operation: "prune_archive", fn: s.pruneArchive})
	}

	var (
		errs        []error
		allCanceled = true
		results     = make([]sweepOutcome, 0, len(steps))
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		outcome := sweepOutcome{
			operation: step.operation,
			count:     count,
			err:       suppressContextCancellation(err),
		}
		results = append(results, outcome)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.operation, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	s.emitSweepMetrics(results, s.now().Sub(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return context.Canceled
		}
		return fmt.Errorf("sweep failed: %w", joined)
	}
	return nil
}

type sweepStep struct {
	operation string
	fn        func(context.Context) (int64, error)
}

type sweepOutcome struct {
	operation string
	count     int64
	err       error
}

func (s *ReaperService) evictTerminal(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.config.JobRetention)
	evicted := s.store.EvictTerminal(cutoff)
	if len(evicted) > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "evicted finished jobs",
			"count", len(evicted),
			"retention", s.config.JobRetention,
		)
	}
	return int64(len(evicted)), nil
}

func (s *ReaperService) pruneArchive(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.ArchiveRetention)
	count, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		return count, err
	}
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "pruned archived jobs",
			"count", count,
			"retention", s.config.ArchiveRetention,
		)
	}
	return count, nil
}

func (s *ReaperService) emitSweepMetrics(results []sweepOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		total += r.count
		if firstErr == nil && r.err != nil {
			firstErr = r.err
		}
	}

	tags := map[string]string{"result": resultFor(total, firstErr)}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}

	for _, r := range results {
		opTags := map[string]string{
			"operation": r.operation,
			"result":    resultFor(r.count, r.err),
		}
		if r.err != nil {
			if class := obserrors.Classify(r.err); class != "" {
				opTags["error_class"] = class
			}
		}
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if r.err == nil && r.count > 0 {
			s.metrics.Count("reaper.jobs_processed", r.count, metrics.CloneTags(opTags))
		}
	}

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func resultFor(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func (s *ReaperService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
