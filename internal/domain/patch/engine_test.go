package patch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/selfheal/internal/adapters/gitcli"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/testutil"
)

// fakeTree records git invocations and fails the first failUntil apply calls.
type fakeTree struct {
	dir         string
	failUntil   int
	calls       [][]string
	patchSeen   []bool
	patchBodies []string
}

func (f *fakeTree) Dir() string { return f.dir }

func (f *fakeTree) Git(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	b, err := os.ReadFile(filepath.Join(f.dir, FileName))
	f.patchSeen = append(f.patchSeen, err == nil)
	f.patchBodies = append(f.patchBodies, string(b))
	if len(f.calls) <= f.failUntil {
		return "", errors.New("git apply failed: exit status 1: error: patch failed: src/math.js:3")
	}
	return "", nil
}

const simpleDiff = "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-one\n+two\n"

func assertNoArtifact(t *testing.T, dir string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, FileName))
	assert.True(t, os.IsNotExist(err), "patch artifact left on disk")
}

func TestEngine_StrategiesInOrder(t *testing.T) {
	t.Parallel()
	tree := &fakeTree{dir: t.TempDir(), failUntil: 2}
	e := NewEngine(EngineOptions{})

	err := e.Apply(context.Background(), tree, "Sure!\n```diff\n"+simpleDiff+"```\n")
	require.NoError(t, err)

	require.Len(t, tree.calls, 3)
	for i, s := range Strategies {
		want := append(append([]string{"apply"}, s.Args...), FileName)
		assert.Equal(t, want, tree.calls[i])
		assert.True(t, tree.patchSeen[i], "patch file present during attempt %d", i)
	}
	assert.Equal(t, simpleDiff, tree.patchBodies[0])
	assertNoArtifact(t, tree.dir)
}

func TestEngine_WritesPatchWithoutTrailingProse(t *testing.T) {
	t.Parallel()
	tree := &fakeTree{dir: t.TempDir()}
	e := NewEngine(EngineOptions{})

	err := e.Apply(context.Background(), tree, "```diff\n"+simpleDiff+"```\nHope this helps!\n")
	require.NoError(t, err)

	require.Len(t, tree.patchBodies, 1)
	assert.Equal(t, simpleDiff, tree.patchBodies[0])
	assertNoArtifact(t, tree.dir)
}

func TestEngine_AllStrategiesFail(t *testing.T) {
	t.Parallel()
	tree := &fakeTree{dir: t.TempDir(), failUntil: 99}
	e := NewEngine(EngineOptions{})

	var sb strings.Builder
	sb.WriteString("--- a/a.txt\n+++ b/a.txt\n@@ -1,30 +1,30 @@\n")
	for i := range 30 {
		sb.WriteString(" line ")
		sb.WriteString(strings.Repeat("x", i))
		sb.WriteString("   \n")
	}

	err := e.Apply(context.Background(), tree, sb.String())
	require.Error(t, err)
	assert.True(t, apperrors.IsPatchApply(err))
	assert.Len(t, tree.calls, len(Strategies))
	assert.Contains(t, err.Error(), "patch failed: src/math.js:3")
	assert.Contains(t, err.Error(), "Patch preview (first 20 lines)")

	preview := err.Error()[strings.Index(err.Error(), "lines):\n")+len("lines):\n"):]
	assert.Len(t, strings.Split(preview, "\n"), 20)
	assert.NotContains(t, preview, "   \n", "preview shows the cleaned patch")
	assertNoArtifact(t, tree.dir)
}

func TestEngine_NoDiffContent(t *testing.T) {
	t.Parallel()
	tree := &fakeTree{dir: t.TempDir()}
	err := NewEngine(EngineOptions{}).Apply(context.Background(), tree, "I am unable to help")
	require.Error(t, err)
	assert.True(t, apperrors.IsPatchFormat(err))
	assert.Empty(t, tree.calls, "no apply attempted")
	assertNoArtifact(t, tree.dir)
}

func TestEngine_RealGit(t *testing.T) {
	repo := testutil.NewGitRepo(t, map[string]string{
		"src/math.js": "function add(a, b) {\n  return a - b\n}\nmodule.exports = { add }\n",
	})
	tree := gitcli.Open(repo.Dir)
	e := NewEngine(EngineOptions{})
	ctx := context.Background()

	diff := "Here's the patch:\n```diff\n" +
		"diff --git a/src/math.js b/src/math.js\n" +
		"--- a/src/math.js\n" +
		"+++ b/src/math.js\n" +
		"@@ -1,4 +1,4 @@\n" +
		" function add(a, b) {\n" +
		"-  return a - b\n" +
		"+  return a + b   \n" +
		" }\n" +
		" module.exports = { add }\n" +
		"```\n"

	require.NoError(t, e.Apply(ctx, tree, diff))
	assert.Equal(t, "function add(a, b) {\n  return a + b\n}\nmodule.exports = { add }\n", repo.Read("src/math.js"))
	assertNoArtifact(t, repo.Dir)

	stat, err := e.DiffStat(ctx, tree)
	require.NoError(t, err)
	assert.Contains(t, stat, "src/math.js")
	assert.Contains(t, stat, "1 file changed")
}

func TestEngine_RealGitRejectsMismatchedContext(t *testing.T) {
	repo := testutil.NewGitRepo(t, map[string]string{"a.txt": "alpha\nbeta\ngamma\n"})
	tree := gitcli.Open(repo.Dir)

	diff := "--- a/a.txt\n+++ b/a.txt\n@@ -1,3 +1,3 @@\n alpha\n-delta\n+epsilon\n gamma\n"
	err := NewEngine(EngineOptions{}).Apply(context.Background(), tree, diff)
	require.Error(t, err)
	assert.True(t, apperrors.IsPatchApply(err))
	assert.Contains(t, err.Error(), "a.txt")
	assert.Equal(t, "alpha\nbeta\ngamma\n", repo.Read("a.txt"))
	assertNoArtifact(t, repo.Dir)
}
