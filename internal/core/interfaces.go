package core

import (
	"context"
	"time"

	"github.com/target/selfheal/internal/domain/model"
)

// This file contains the ports between the heal pipeline and its collaborators.
// Services depend on these interfaces; adapters and the data layer implement them.

// JobProgress is the narrow write surface the pipeline publishes progress through.
// Both operations are no-ops for unknown ids.
type JobProgress interface {
	Patch(id string, p model.JobPatch)
	AppendLog(id, line string)
}

// JobStore is the process-wide record of heal jobs.
type JobStore interface {
	JobProgress
	Create() *model.Job
	Get(id string) (*model.Job, bool)
	ClearLogs(id string) bool
	JobEvictor
}

// JobEvictor drops finished jobs from the live store.
type JobEvictor interface {
	EvictTerminal(olderThan time.Time) []string
}

// JobArchive persists terminal job snapshots beyond the in-memory store.
type JobArchive interface {
	Save(ctx context.Context, job *model.Job) error
	// Get returns a NotFound AppError when the id was never archived or has expired.
	Get(ctx context.Context, id string) (*model.Job, error)
}

// ArchivePruner deletes archived snapshots of jobs that finished before olderThan.
type ArchivePruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Generator sends one conversation to the text-generation service and returns its text.
// An empty string with a nil error means the service produced no output text.
type Generator interface {
	Generate(ctx context.Context, req model.GenerateRequest) (string, error)
}

// SourceControl is the subset of the source-control host's API the service uses.
type SourceControl interface {
	ListRuns(ctx context.Context, ref model.RepoRef, limit int) ([]model.Run, error)
	GetRun(ctx context.Context, ref model.RepoRef, runID int64) (*model.Run, error)
	// RunLog returns the run's decoded log text, expanding zip and gzip archives.
	RunLog(ctx context.Context, ref model.RepoRef, runID int64) (string, error)
	CreatePullRequest(ctx context.Context, ref model.RepoRef, in model.PullRequestInput) (*model.PullRequest, error)
}

// Tree is a working tree that git commands can run against.
type Tree interface {
	Dir() string
	Git(ctx context.Context, args ...string) (string, error)
}

// Workspace is an isolated checkout owned by exactly one job.
type Workspace interface {
	Tree
	Head(ctx context.Context) (string, error)
	LastCommitMessage(ctx context.Context) (string, error)
	// ChangedFiles lists paths touched by the last commit; empty when it has no parent.
	ChangedFiles(ctx context.Context) ([]string, error)
	TrackedFiles(ctx context.Context) ([]string, error)
	CreateBranch(ctx context.Context, name string) error
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
	// Close removes the checkout directory.
	Close() error
}

// Cloner creates isolated checkouts at a given commit.
type Cloner interface {
	Clone(ctx context.Context, req model.CloneRequest) (Workspace, error)
}

// BundleBuilder assembles the context bundle from a checkout and a failure log tail.
type BundleBuilder interface {
	Build(ctx context.Context, repo Workspace, logTail string) (*model.Bundle, error)
}

// PatchEngine applies generated diff text to a working tree.
type PatchEngine interface {
	// Apply returns a PatchFormat AppError when no diff content is found and a
	// PatchApply AppError carrying the diagnostic when every strategy fails.
	Apply(ctx context.Context, tree Tree, raw string) error
	DiffStat(ctx context.Context, tree Tree) (string, error)
}

// Verifier runs the project's verification command inside a checkout.
type Verifier interface {
	// Verify returns the captured output. A non-zero exit returns a Verification
	// AppError whose message includes that output.
	Verify(ctx context.Context, dir, command string) (string, error)
}

// TokenVerifier validates an API bearer token and identifies its caller.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (model.Principal, error)
}
