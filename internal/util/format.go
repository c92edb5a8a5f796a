package util //nolint:revive // package name util hosts shared formatting helpers

import "time"

// FormatElapsed formats a duration for display. Zero or negative durations
// render as "-", anything else is truncated to milliseconds.
func FormatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobElapsed returns the time between created and finished, or zero when finished is nil.
func JobElapsed(created time.Time, finished *time.Time) time.Duration {
	if finished == nil || created.IsZero() {
		return 0
	}
	return finished.Sub(created)
}
