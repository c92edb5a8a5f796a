// Package metrics emits the heal service's StatsD metrics.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/selfheal/internal/observability/errors"
	"github.com/target/selfheal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultRetry   = "retry"
	ResultNoop    = "noop"
)

// JobMetric captures details about a heal job transition.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits heal.job.transition and, when a duration is known, heal.job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("heal.job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("heal.job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRateLimited counts a whole-pipeline reschedule.
func EmitRateLimited(sink statsd.Sink, attempt int) {
	if sink == nil {
		return
	}
	sink.Count("heal.job.rate_limited", 1, map[string]string{"attempt": strconv.Itoa(attempt)})
}

// GenerateMetric describes one logical generation call, including its retries.
type GenerateMetric struct {
	Model    string
	Status   int
	Retries  int
	Duration time.Duration
}

// EmitGenerate emits heal.generate.calls, heal.generate.retries and heal.generate.duration.
func EmitGenerate(sink statsd.Sink, in GenerateMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"model":  in.Model,
		"status": strconv.Itoa(in.Status),
	}
	sink.Count("heal.generate.calls", 1, tags)
	if in.Retries > 0 {
		sink.Count("heal.generate.retries", int64(in.Retries), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("heal.generate.duration", in.Duration, CloneTags(tags))
	}
}

// EmitPatchApply records which apply strategy succeeded, or that all failed.
func EmitPatchApply(sink statsd.Sink, strategy, result string) {
	if sink == nil {
		return
	}
	sink.Count("heal.patch.apply", 1, map[string]string{"strategy": strategy, "result": result})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
