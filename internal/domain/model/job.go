// Package model defines the core data types shared by the self-heal pipeline, its
// job store and its HTTP surface.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a heal job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to (re)start, including rate-limit backoff.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the pipeline is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusDone indicates a pull request was opened.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates the job failed terminally.
	JobStatusError JobStatus = "error"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusDone || s == JobStatusError
}

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// Job is the pollable snapshot of one heal attempt.
type Job struct {
	ID           string     `json:"id"                     yaml:"id"`
	Status       JobStatus  `json:"status"                 yaml:"status"`
	Step         string     `json:"step"                   yaml:"step"`
	Logs         []string   `json:"logs"                   yaml:"logs"`
	Retries      int        `json:"retries"                yaml:"retries"`
	PRURL        string     `json:"prUrl,omitempty"        yaml:"prUrl,omitempty"`
	DiffStat     string     `json:"diffStat,omitempty"     yaml:"diffStat,omitempty"`
	VerifyLog    string     `json:"verifyLog,omitempty"    yaml:"verifyLog,omitempty"`
	PatchPreview string     `json:"patchPreview,omitempty" yaml:"patchPreview,omitempty"`
	PRBody       string     `json:"prBody,omitempty"       yaml:"prBody,omitempty"`
	Bundle       string     `json:"bundle,omitempty"       yaml:"bundle,omitempty"`
	BundleFiles  []string   `json:"bundleFiles,omitempty"  yaml:"bundleFiles,omitempty"`
	Error        string     `json:"error,omitempty"        yaml:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"              yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"              yaml:"updatedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"   yaml:"finishedAt,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Logs = slices.Clone(j.Logs)
	if c.Logs == nil {
		c.Logs = []string{}
	}
	c.BundleFiles = slices.Clone(j.BundleFiles)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// JobPatch is a partial update merged into a stored Job. Nil fields are left untouched,
// so a field never disappears once set.
type JobPatch struct {
	Status       *JobStatus
	Step         *string
	Retries      *int
	PRURL        *string
	DiffStat     *string
	VerifyLog    *string
	PatchPreview *string
	PRBody       *string
	Bundle       *string
	BundleFiles  []string
	Error        *string
}

// Apply merges the patch into j. now stamps UpdatedAt and, on terminal status, FinishedAt.
func (p JobPatch) Apply(j *Job, now time.Time) {
	if p.Status != nil {
		j.Status = *p.Status
		if j.Status.Terminal() && j.FinishedAt == nil {
			t := now
			j.FinishedAt = &t
		}
	}
	setString(&j.Step, p.Step)
	if p.Retries != nil {
		j.Retries = *p.Retries
	}
	setString(&j.PRURL, p.PRURL)
	setString(&j.DiffStat, p.DiffStat)
	setString(&j.VerifyLog, p.VerifyLog)
	setString(&j.PatchPreview, p.PatchPreview)
	setString(&j.PRBody, p.PRBody)
	setString(&j.Bundle, p.Bundle)
	if p.BundleFiles != nil {
		j.BundleFiles = slices.Clone(p.BundleFiles)
	}
	setString(&j.Error, p.Error)
	j.UpdatedAt = now
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// StepPatch builds a patch that only moves the step label.
func StepPatch(step string) JobPatch {
	return JobPatch{Step: &step}
}

// StatusPatch builds a patch that sets status and step together.
func StatusPatch(status JobStatus, step string) JobPatch {
	return JobPatch{Status: &status, Step: &step}
}
