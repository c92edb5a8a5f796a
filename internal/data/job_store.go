package data

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
)

// LogTimeLayout is the clock prefix stamped on every job log line.
const LogTimeLayout = "15:04:05"

// JobStore is the in-memory, process-wide map of heal jobs.
// Every operation holds the lock only for a single map access or merge.
type JobStore struct {
	mu           sync.RWMutex
	jobs         map[string]*model.Job
	timeProvider TimeProvider
	newID        func() string
}

// JobStoreOptions configures a JobStore.
type JobStoreOptions struct {
	TimeProvider TimeProvider
	// IDFunc overrides id generation; defaults to UUIDv7 (random bits plus a time component).
	IDFunc func() string
}

var _ core.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty JobStore.
func NewJobStore(opts JobStoreOptions) *JobStore {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	idFn := opts.IDFunc
	if idFn == nil {
		idFn = newJobID
	}
	return &JobStore{
		jobs:         make(map[string]*model.Job),
		timeProvider: tp,
		newID:        idFn,
	}
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Create inserts a queued job with empty logs and zero retries.
func (s *JobStore) Create() *model.Job {
	now := s.timeProvider.Now()
	job := &model.Job{
		Status:    model.JobStatusQueued,
		Step:      "queued",
		Logs:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		job.ID = s.newID()
		if _, exists := s.jobs[job.ID]; !exists {
			break
		}
	}
	s.jobs[job.ID] = job
	return job.Clone()
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (*model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Patch merges p into the stored job. Unknown ids are ignored.
func (s *JobStore) Patch(id string, p model.JobPatch) {
	now := s.timeProvider.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		p.Apply(job, now)
	}
}

// AppendLog appends a line prefixed with the local wall-clock time. Unknown ids are ignored.
func (s *JobStore) AppendLog(id, line string) {
	now := s.timeProvider.Now()
	entry := now.Local().Format(LogTimeLayout) + " · " + line
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Logs = append(job.Logs, entry)
		job.UpdatedAt = now
	}
}

// ClearLogs trims the job's logs down to the most recent entry.
func (s *JobStore) ClearLogs(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if n := len(job.Logs); n > 1 {
		job.Logs = []string{job.Logs[n-1]}
	}
	return true
}

// EvictTerminal removes done/error jobs that finished before olderThan and
// returns their ids. Queued and running jobs are never evicted.
func (s *JobStore) EvictTerminal(olderThan time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, job := range s.jobs {
		if !job.Status.Terminal() {
			continue
		}
		finished := job.UpdatedAt
		if job.FinishedAt != nil {
			finished = *job.FinishedAt
		}
		if finished.Before(olderThan) {
			delete(s.jobs, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len returns the number of jobs held in memory.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
