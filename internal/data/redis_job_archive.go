package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

// RedisJobKeyPrefix namespaces archived job snapshots.
const RedisJobKeyPrefix = "selfheal:job:"

// DefaultRedisJobTTL is how long a snapshot is kept when no TTL is configured.
const DefaultRedisJobTTL = 7 * 24 * time.Hour

// RedisJobArchive stores terminal job snapshots as expiring JSON values so any
// instance can answer status polls after the owning process forgot the job.
type RedisJobArchive struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.JobArchive = (*RedisJobArchive)(nil)

// NewRedisJobArchive creates a RedisJobArchive. A non-positive ttl uses DefaultRedisJobTTL.
func NewRedisJobArchive(client redis.UniversalClient, ttl time.Duration) *RedisJobArchive {
	if ttl <= 0 {
		ttl = DefaultRedisJobTTL
	}
	return &RedisJobArchive{client: client, ttl: ttl}
}

func redisJobKey(id string) string {
	return RedisJobKeyPrefix + id
}

// Save writes the snapshot, replacing any earlier one and resetting its TTL.
func (a *RedisJobArchive) Save(ctx context.Context, job *model.Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return apperrors.Validation("job id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := a.client.Set(ctx, redisJobKey(job.ID), payload, a.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get loads a snapshot by id.
func (a *RedisJobArchive) Get(ctx context.Context, id string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NotFound("Job not found")
	}
	raw, err := a.client.Get(ctx, redisJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("Job not found")
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if job.Logs == nil {
		job.Logs = []string{}
	}
	return &job, nil
}
