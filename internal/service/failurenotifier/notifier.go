// Package failurenotifier fans heal job failures out to the configured notification sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/selfheal/internal/observability/notify"
)

// defaultDeliveryTimeout bounds one fan-out when the caller's context has no deadline.
const defaultDeliveryTimeout = 15 * time.Second

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipErrorClasses suppresses notifications for the listed error classes
	// (for example "validation" or "canceled").
	SkipErrorClasses []string
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	skip   map[string]struct{}
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	skip := make(map[string]struct{}, len(opts.SkipErrorClasses))
	for _, class := range opts.SkipErrorClasses {
		skip[class] = struct{}{}
	}

	return &Service{
		logger: logger.With("component", "failure_notifier"),
		sinks:  sinks,
		skip:   skip,
	}
}

// NotifyJobFailure fans the payload out to every sink and waits for delivery.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if _, skipped := s.skip[payload.ErrorClass]; skipped {
		s.logger.DebugContext(ctx, "skipping notification for error class",
			"job_id", payload.JobID,
			"error_class", payload.ErrorClass,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDeliveryTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"repo", payload.Repository(),
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
