// Package gitcli drives the git binary against isolated, per-job checkouts.
package gitcli

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

// Bot identity used for heal commits.
const (
	DefaultAuthorName  = "selfheal-bot"
	DefaultAuthorEmail = "selfheal@bot.local"
	DefaultHost        = "https://github.com"
)

// Options configures a Cloner.
type Options struct {
	// GitBinary defaults to "git" on PATH.
	GitBinary string
	// Host is the clone origin, e.g. https://github.com.
	Host string
	// TempRoot is where checkouts are created; defaults to os.TempDir().
	TempRoot     string
	CloneTimeout time.Duration
	AuthorName   string
	AuthorEmail  string
	Logger       *slog.Logger
}

// Cloner creates isolated checkouts.
type Cloner struct {
	git          string
	host         string
	tempRoot     string
	cloneTimeout time.Duration
	authorName   string
	authorEmail  string
	logger       *slog.Logger
}

var _ core.Cloner = (*Cloner)(nil)

// NewCloner builds a Cloner with defaults applied.
func NewCloner(opts Options) *Cloner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cloner{
		git:          fallback(opts.GitBinary, "git"),
		host:         strings.TrimRight(fallback(opts.Host, DefaultHost), "/"),
		tempRoot:     opts.TempRoot,
		cloneTimeout: opts.CloneTimeout,
		authorName:   fallback(opts.AuthorName, DefaultAuthorName),
		authorEmail:  fallback(opts.AuthorEmail, DefaultAuthorEmail),
		logger:       logger.With("component", "gitcli"),
	}
}

// Clone checks out req.SHA into a fresh temp dir and configures the bot identity.
// On failure the directory is removed.
func (c *Cloner) Clone(ctx context.Context, req model.CloneRequest) (core.Workspace, error) {
	if strings.TrimSpace(req.SHA) == "" {
		return nil, apperrors.Validation("run has no head commit")
	}
	dir, err := os.MkdirTemp(c.tempRoot, "selfheal-")
	if err != nil {
		return nil, fmt.Errorf("create checkout dir: %w", err)
	}

	repo := &Repo{
		dir:       dir,
		git:       c.git,
		remoteURL: fmt.Sprintf("%s/%s/%s.git", c.host, url.PathEscape(req.Owner), url.PathEscape(req.Repo)),
		token:     req.Token,
		owned:     true,
		logger:    c.logger,
	}

	if err := c.checkout(ctx, repo, req.SHA); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func (c *Cloner) checkout(ctx context.Context, repo *Repo, sha string) error {
	cloneCtx := ctx
	if c.cloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, c.cloneTimeout)
		defer cancel()
	}

	if _, err := repo.authed(cloneCtx, "clone", "--quiet", repo.remoteURL, "."); err != nil {
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &apperrors.AppError{
				Code:    apperrors.ErrCodeTimeout,
				Message: fmt.Sprintf("clone timed out after %s", c.cloneTimeout),
				Cause:   err,
			}
		}
		return err
	}
	if _, err := repo.Git(ctx, "checkout", "--quiet", sha); err != nil {
		return err
	}
	if _, err := repo.Git(ctx, "config", "user.email", c.authorEmail); err != nil {
		return err
	}
	_, err := repo.Git(ctx, "config", "user.name", c.authorName)
	return err
}

// Repo is a git working tree. It implements core.Workspace.
type Repo struct {
	dir       string
	git       string
	remoteURL string
	token     string
	owned     bool
	logger    *slog.Logger
}

var _ core.Workspace = (*Repo)(nil)

// Open wraps an existing working tree. Close on an opened Repo leaves the directory in place.
func Open(dir string) *Repo {
	return &Repo{dir: dir, git: "git", logger: slog.Default().With("component", "gitcli")}
}

// Dir returns the working tree root.
func (r *Repo) Dir() string { return r.dir }

// Git runs git in the working tree and returns stdout. Errors carry stderr with credentials redacted.
func (r *Repo) Git(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, nil, args...)
}

// authed runs a git command with the job credential sent as an HTTP header, so it is never
// written to .git/config.
func (r *Repo) authed(ctx context.Context, args ...string) (string, error) {
	if r.token == "" {
		return r.run(ctx, nil, args...)
	}
	return r.run(ctx, []string{"-c", "http.extraheader=Authorization: Basic " + basicAuth(r.token)}, args...)
}

func (r *Repo) run(ctx context.Context, prefix []string, args ...string) (string, error) {
	full := append(append([]string{}, prefix...), args...)
	cmd := exec.CommandContext(ctx, r.git, full...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		verb := strings.Join(args, " ")
		if len(args) > 0 {
			verb = args[0]
		}
		if msg != "" {
			return stdout.String(), errors.New(r.redact(fmt.Sprintf("git %s failed: %v: %s", verb, err, msg)))
		}
		return stdout.String(), errors.New(r.redact(fmt.Sprintf("git %s failed: %v", verb, err)))
	}
	return stdout.String(), nil
}

func (r *Repo) redact(s string) string {
	if r.token == "" {
		return s
	}
	s = strings.ReplaceAll(s, basicAuth(r.token), "***")
	return strings.ReplaceAll(s, r.token, "***")
}

func basicAuth(token string) string {
	return base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
}

// Head returns the current commit id.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.Git(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

// LastCommitMessage returns the body of the HEAD commit.
func (r *Repo) LastCommitMessage(ctx context.Context) (string, error) {
	out, err := r.Git(ctx, "log", "-1", "--pretty=%B")
	return strings.TrimSpace(out), err
}

// ChangedFiles lists paths touched by HEAD. A root commit yields an empty list.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := r.Git(ctx, "diff", "--name-only", "HEAD~1..HEAD")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.DebugContext(ctx, "no parent commit for changed files", "error", err)
		return []string{}, nil
	}
	return splitLines(out), nil
}

// TrackedFiles lists every version-controlled path.
func (r *Repo) TrackedFiles(ctx context.Context) ([]string, error) {
	out, err := r.Git(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CreateBranch creates and switches to name.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	_, err := r.Git(ctx, "checkout", "-b", name)
	return err
}

// CommitAll stages every change and commits it.
func (r *Repo) CommitAll(ctx context.Context, message string) error {
	if _, err := r.Git(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err := r.Git(ctx, "commit", "-m", message)
	return err
}

// Push publishes branch to origin using the job credential.
func (r *Repo) Push(ctx context.Context, branch string) error {
	_, err := r.authed(ctx, "push", "-u", "origin", branch)
	return err
}

// Close removes the checkout when this Repo created it.
func (r *Repo) Close() error {
	if !r.owned || r.dir == "" {
		return nil
	}
	return os.RemoveAll(r.dir)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func fallback(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
