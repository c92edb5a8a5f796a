package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API and the in-process heal workers.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReaper evicts finished jobs and prunes the archive.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// JobRetention is how long a finished job stays in the live store.
	// Queued and running jobs are never evicted.
	JobRetention time.Duration `env:"REAPER_JOB_RETENTION" envDefault:"24h"`

	// ArchiveRetention is how long archived snapshots are kept in Postgres.
	// Zero disables pruning; Redis snapshots expire through ARCHIVE_REDIS_TTL instead.
	ArchiveRetention time.Duration `env:"REAPER_ARCHIVE_RETENTION" envDefault:"0"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.JobRetention < time.Minute {
		r.JobRetention = time.Minute
	}
	if r.ArchiveRetention < 0 {
		r.ArchiveRetention = 0
	}
	if r.ArchiveRetention > 0 && r.ArchiveRetention < time.Hour {
		r.ArchiveRetention = time.Hour
	}
}
