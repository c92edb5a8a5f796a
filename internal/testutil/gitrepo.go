package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// RequireGit skips the test when no git binary is on PATH.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available:", err)
	}
}

// GitRepo is a throwaway repository rooted in a test temp dir.
type GitRepo struct {
	t   testing.TB
	Dir string
}

// NewGitRepo initializes a repository and commits files as the first commit.
func NewGitRepo(t testing.TB, files map[string]string) *GitRepo {
	t.Helper()
	RequireGit(t)

	r := &GitRepo{t: t, Dir: t.TempDir()}
	r.Run("init", "--quiet", "--initial-branch=main")
	r.Run("config", "user.email", "test@example.com")
	r.Run("config", "user.name", "test")
	r.Run("config", "commit.gpgsign", "false")
	r.Commit("initial", files)
	return r
}

// Commit writes files and commits them with message.
func (r *GitRepo) Commit(message string, files map[string]string) {
	r.t.Helper()
	r.Write(files)
	r.Run("add", "-A")
	r.Run("commit", "--quiet", "--allow-empty", "-m", message)
}

// Write creates or overwrites files relative to the repo root, in a stable order.
func (r *GitRepo) Write(files map[string]string) {
	r.t.Helper()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		full := filepath.Join(r.Dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			r.t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(full, []byte(files[p]), 0o644); err != nil {
			r.t.Fatalf("write %s: %v", p, err)
		}
	}
}

// Read returns the content of a file in the repo.
func (r *GitRepo) Read(path string) string {
	r.t.Helper()
	b, err := os.ReadFile(filepath.Join(r.Dir, filepath.FromSlash(path)))
	if err != nil {
		r.t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// Run executes git in the repo and fails the test on error.
func (r *GitRepo) Run(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}
