package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	obserrors "github.com/target/selfheal/internal/observability/errors"
	"github.com/target/selfheal/internal/observability/metrics"
	"github.com/target/selfheal/internal/observability/notify"
	"github.com/target/selfheal/internal/observability/statsd"
	"github.com/target/selfheal/internal/service/failurenotifier"
)

// Defaults for whole-pipeline rate-limit rescheduling.
const (
	DefaultRateLimitRetries = 2
	DefaultRateLimitDelay   = 25 * time.Second
	DefaultArchiveTimeout   = 10 * time.Second
)

// MsgShuttingDown is recorded on jobs interrupted by Shutdown.
const MsgShuttingDown = "shutting down"

// HealRunner executes one full pipeline attempt for a job.
type HealRunner interface {
	Run(ctx context.Context, jobID string, req model.HealRequest) (*model.HealResult, error)
}

var _ HealRunner = (*HealPipeline)(nil)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store           core.JobStore            // Required: live job state
	Runner          HealRunner               // Required: the heal pipeline
	Archive         core.JobArchive          // Optional: terminal snapshot persistence
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out
	// RateLimitRetries is the restart ceiling for rate-limited attempts. Negative values
	// disable rescheduling; zero means no restarts.
	RateLimitRetries int
	RateLimitDelay   time.Duration // Optional: defaults to DefaultRateLimitDelay
	ArchiveTimeout   time.Duration // Optional: defaults to DefaultArchiveTimeout
	Logger           *slog.Logger  // Optional: structured logger
	Metrics          statsd.Sink   // Optional: metrics sink
}

// JobService owns the lifecycle of heal jobs.
//
// This service manages:
// - Input validation and job creation
// - One background task per job, restarted from the top on rate limiting
// - Terminal transitions, failure notifications and archiving
// - Graceful shutdown of in-flight tasks.
type JobService struct {
	store           core.JobStore
	runner          HealRunner
	archive         core.JobArchive
	failureNotifier *failurenotifier.Service
	retries         int
	delay           time.Duration
	archiveTimeout  time.Duration
	logger          *slog.Logger
	metrics         statsd.Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("HealRunner is required")
	}

	delay := opts.RateLimitDelay
	if delay <= 0 {
		delay = DefaultRateLimitDelay
	}
	archiveTimeout := opts.ArchiveTimeout
	if archiveTimeout <= 0 {
		archiveTimeout = DefaultArchiveTimeout
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"rate_limit_retries", max(opts.RateLimitRetries, 0),
			"rate_limit_delay", delay,
			"archive", opts.Archive != nil,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobService{
		store:           opts.Store,
		runner:          opts.Runner,
		archive:         opts.Archive,
		failureNotifier: opts.FailureNotifier,
		retries:         max(opts.RateLimitRetries, 0),
		delay:           delay,
		archiveTimeout:  archiveTimeout,
		logger:          logger,
		metrics:         opts.Metrics,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit validates req, creates a queued job and starts its pipeline in the background.
// It returns as soon as the job exists.
func (s *JobService) Submit(ctx context.Context, req model.HealRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.Conflict("Service is shutting down")
	}
	job := s.store.Create()
	s.wg.Add(1)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.InfoContext(ctx, "heal job submitted",
			"job_id", job.ID,
			"repo", req.Owner+"/"+req.Repo,
			"run_id", req.RunID,
			"model", req.Model,
		)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "submitted", Result: metrics.ResultSuccess})

	go s.run(job.ID, req, time.Now())
	return job, nil
}

// run drives attempts until the job is done, failed, or out of rate-limit restarts.
func (s *JobService) run(id string, req model.HealRequest, started time.Time) {
	defer s.wg.Done()

	for attempt := 0; ; attempt++ {
		running := model.JobStatusRunning
		s.store.Patch(id, model.JobPatch{Status: &running, Retries: &attempt})

		res, err := s.runner.Run(s.ctx, id, req)
		if err == nil {
			s.complete(id, res, started)
			return
		}
		if s.ctx.Err() != nil {
			s.fail(id, req, apperrors.Wrap(err, apperrors.ErrCodeCanceled, MsgShuttingDown), started)
			return
		}
		if !IsRateLimited(err) || attempt >= s.retries {
			s.fail(id, req, err, started)
			return
		}

		queued := model.JobStatusQueued
		s.store.Patch(id, model.StatusPatch(queued, "rate limited"))
		s.store.AppendLog(id, fmt.Sprintf("Rate limited. Retrying in %ds (attempt %d/%d).",
			int(math.Round(s.delay.Seconds())), attempt+1, s.retries))
		metrics.EmitRateLimited(s.metrics, attempt+1)
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "rescheduled", Result: metrics.ResultRetry})
		if s.logger != nil {
			s.logger.Warn("heal job rate limited; rescheduling",
				"job_id", id,
				"attempt", attempt+1,
				"max", s.retries,
				"delay", s.delay,
				"error", err,
			)
		}

		timer := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.fail(id, req, apperrors.Wrap(s.ctx.Err(), apperrors.ErrCodeCanceled, MsgShuttingDown), started)
			return
		case <-timer.C:
		}
	}
}

func (s *JobService) complete(id string, res *model.HealResult, started time.Time) {
	s.store.Patch(id, res.Patch())
	s.store.AppendLog(id, "Done")

	if s.logger != nil {
		s.logger.Info("heal job done", "job_id", id, "pr_url", res.PRURL)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "completed",
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(started),
	})
	s.archiveJob(id)
}

func (s *JobService) fail(id string, req model.HealRequest, cause error, started time.Time) {
	msg := cause.Error()
	var appErr *apperrors.AppError
	if errors.As(cause, &appErr) && appErr.Code == apperrors.ErrCodeCanceled {
		msg = appErr.Message
	}

	var step string
	var retries int
	if snapshot, ok := s.store.Get(id); ok {
		step = snapshot.Step
		retries = snapshot.Retries
	}

	errStatus := model.JobStatusError
	s.store.Patch(id, model.JobPatch{Status: &errStatus, Step: ptr("error"), Error: &msg})
	s.store.AppendLog(id, "Error: "+msg)

	class := obserrors.Classify(cause)
	if s.logger != nil {
		s.logger.Error("heal job failed",
			"job_id", id,
			"step", step,
			"error_class", class,
			"error", msg,
		)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "failed",
		Result:     metrics.ResultError,
		Duration:   time.Since(started),
		Err:        cause,
	})

	if s.failureNotifier != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.archiveTimeout)
		s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      id,
			Owner:      req.Owner,
			Repo:       req.Repo,
			RunID:      req.RunID,
			Step:       step,
			Retries:    retries,
			Error:      msg,
			ErrorClass: class,
			Metadata:   map[string]string{"model": req.Model},
		})
		cancel()
	}
	s.archiveJob(id)
}

// archiveJob persists the terminal snapshot. Failures are logged, never surfaced.
func (s *JobService) archiveJob(id string) {
	if s.archive == nil {
		return
	}
	job, ok := s.store.Get(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.archiveTimeout)
	defer cancel()
	if err := s.archive.Save(ctx, job); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to archive job", "job_id", id, "error", err)
	}
}

// Get returns the live job snapshot, falling back to the archive for evicted jobs.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	if job, ok := s.store.Get(id); ok {
		return job, nil
	}
	if s.archive == nil {
		return nil, apperrors.NotFound("Job not found")
	}
	job, err := s.archive.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("Job not found")
		}
		return nil, fmt.Errorf("get archived job %s: %w", id, err)
	}
	return job, nil
}

// ClearLogs trims a live job's log to its most recent line.
func (s *JobService) ClearLogs(_ context.Context, id string) error {
	if !s.store.ClearLogs(id) {
		return apperrors.NotFound("Job not found")
	}
	return nil
}

// Shutdown stops accepting jobs, cancels in-flight attempts and pending reschedules,
// and waits for every job task to record its terminal state or for ctx to end.
func (s *JobService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if s.logger != nil {
			s.logger.InfoContext(ctx, "job service stopped")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for heal jobs: %w", ctx.Err())
	}
}

func ptr[T any](v T) *T {
	return &v
}
