package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/selfheal/internal/data"
	"github.com/target/selfheal/internal/domain/heal"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/mocks"
	"github.com/target/selfheal/internal/observability/statsd"
)

const (
	testHeadSHA = "abcdef0123456789"
	testBranch  = "selfheal/run-42-abcdef01"
	testPlan    = `{"summary":"add() drops its second operand","fix_plan":[{"step":"return a + b","files":["src/math.js"]}]}`
	testDiff    = "diff --git a/src/math.js b/src/math.js\n--- a/src/math.js\n+++ b/src/math.js\n@@ -1 +1 @@\n-return a\n+return a + b\n"
)

type pipelineFixture struct {
	scm      *mocks.MockSourceControl
	gen      *mocks.MockGenerator
	cloner   *mocks.MockCloner
	ws       *mocks.MockWorkspace
	verifier *mocks.MockVerifier
	bundles  *mocks.MockBundleBuilder
	patches  *mocks.MockPatchEngine
	store    *data.JobStore
	metrics  *statsd.Recorder
	pipeline *HealPipeline
	dir      string
	jobID    string
	prompts  []model.GenerateRequest
	mu       sync.Mutex
}

func testHealRequest() model.HealRequest {
	return model.HealRequest{
		Owner:         "acme",
		Repo:          "widgets",
		Base:          "main",
		Token:         "ghs_test",
		RunID:         42,
		Model:         "gpt-4.1-mini",
		Temperature:   0.2,
		VerifyCommand: "npm test",
	}
}

func testRef() model.RepoRef {
	return model.RepoRef{Owner: "acme", Repo: "widgets", Token: "ghs_test"}
}

// newPipelineFixture wires mocks through the common prefix of every run: metadata, logs,
// checkout and bundle.
func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &pipelineFixture{
		scm:      mocks.NewMockSourceControl(ctrl),
		gen:      mocks.NewMockGenerator(ctrl),
		cloner:   mocks.NewMockCloner(ctrl),
		ws:       mocks.NewMockWorkspace(ctrl),
		verifier: mocks.NewMockVerifier(ctrl),
		bundles:  mocks.NewMockBundleBuilder(ctrl),
		patches:  mocks.NewMockPatchEngine(ctrl),
		store:    data.NewJobStore(data.JobStoreOptions{}),
		metrics:  &statsd.Recorder{},
		dir:      t.TempDir(),
	}
	f.jobID = f.store.Create().ID

	var err error
	f.pipeline, err = NewHealPipeline(HealPipelineOptions{
		SourceControl: f.scm,
		Generator:     f.gen,
		Cloner:        f.cloner,
		Verifier:      f.verifier,
		Progress:      f.store,
		Bundles:       f.bundles,
		Patches:       f.patches,
		Metrics:       f.metrics,
	})
	require.NoError(t, err)

	logText := "FAIL test/math.test.js\n  at add (src/math.js:1:10)\n"
	f.scm.EXPECT().GetRun(gomock.Any(), testRef(), int64(42)).
		Return(&model.Run{ID: 42, HeadSHA: testHeadSHA, Conclusion: "failure"}, nil)
	f.scm.EXPECT().RunLog(gomock.Any(), testRef(), int64(42)).Return(logText, nil)
	f.cloner.EXPECT().Clone(gomock.Any(), model.CloneRequest{RepoRef: testRef(), SHA: testHeadSHA}).Return(f.ws, nil)
	f.ws.EXPECT().Dir().Return(f.dir).AnyTimes()
	f.ws.EXPECT().Close().Return(nil)
	f.bundles.EXPECT().Build(gomock.Any(), f.ws, logText).Return(&model.Bundle{
		Text:  "BUNDLE",
		Files: []string{"src/math.js"},
	}, nil)
	return f
}

// expectGenerations answers Generate calls in order and fails the test on any extra call.
func (f *pipelineFixture) expectGenerations(responses ...string) {
	calls := 0
	f.gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Times(len(responses)).DoAndReturn(
		func(_ context.Context, req model.GenerateRequest) (string, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.prompts = append(f.prompts, req)
			out := responses[calls]
			calls++
			return out, nil
		})
}

// prompt returns the user message of the i-th generation.
func (f *pipelineFixture) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i].Messages[1].Content
}

func (f *pipelineFixture) system(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i].Messages[0].Content
}

func (f *pipelineFixture) expectCommitAndPR(body string) {
	f.verifier.EXPECT().Verify(gomock.Any(), f.dir, "npm test").Return("$ npm test\n3 passing", nil)
	f.patches.EXPECT().DiffStat(gomock.Any(), f.ws).Return(" src/math.js | 2 +-", nil)
	f.ws.EXPECT().CommitAll(gomock.Any(), "Self-heal: CI fix for run 42").Return(nil)
	f.ws.EXPECT().Push(gomock.Any(), testBranch).Return(nil)
	f.scm.EXPECT().CreatePullRequest(gomock.Any(), testRef(), model.PullRequestInput{
		Title: "Self-heal: CI fix for run 42",
		Head:  testBranch,
		Base:  "main",
		Body:  body,
	}).Return(&model.PullRequest{Number: 7, HTMLURL: "https://github.com/acme/widgets/pull/7"}, nil)
}

func (f *pipelineFixture) logs(t *testing.T) []string {
	t.Helper()
	job, ok := f.store.Get(f.jobID)
	require.True(t, ok)
	out := make([]string, len(job.Logs))
	for i, line := range job.Logs {
		_, msg, found := strings.Cut(line, " · ")
		require.True(t, found, "log line %q has no clock prefix", line)
		out[i] = msg
	}
	return out
}

func TestHealPipeline_HappyPath(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	f.expectGenerations(testPlan, "```diff\n"+testDiff+"```", "Fixes add().")
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, "```diff\n"+testDiff+"```").Return(nil)
	f.expectCommitAndPR("Fixes add().")

	res, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", res.PRURL)
	assert.Equal(t, " src/math.js | 2 +-", res.DiffStat)
	assert.Equal(t, "$ npm test\n3 passing", res.VerifyLog)
	assert.Equal(t, "```diff\n"+testDiff+"```", res.PatchPreview)
	assert.Equal(t, "Fixes add().", res.PRBody)
	assert.Equal(t, "BUNDLE", res.Bundle)
	assert.Equal(t, []string{"src/math.js"}, res.BundleFiles)

	assert.Equal(t, []string{
		"Fetching run metadata",
		"Downloading run logs",
		"Starting heal engine",
		"Creating sandbox checkout",
		"Building context bundle",
		"Planning fix",
		"Generating patch (unified diff)",
		"Creating branch " + testBranch,
		"Applying patch",
		"Verifying: npm test",
		"Committing changes",
		"Pushing branch",
		"Writing PR body",
		"Opening PR",
	}, f.logs(t))

	job, _ := f.store.Get(f.jobID)
	assert.Equal(t, "Opening PR", job.Step)
	assert.Equal(t, model.JobStatusQueued, job.Status, "terminal status is left to the caller")

	require.Len(t, f.prompts, 3)
	for _, p := range f.prompts {
		assert.Equal(t, "gpt-4.1-mini", p.Model)
		assert.InDelta(t, 0.2, p.Temperature, 1e-9)
	}
	assert.Contains(t, f.prompt(1), `"summary":"add() drops its second operand"`)
	assert.Contains(t, f.prompt(2), " src/math.js | 2 +-")
	assert.Contains(t, f.prompt(2), "3 passing")
}

func TestHealPipeline_PlannerInvalid(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	f.expectGenerations("I think the bug is in add().")

	_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsPlanner(err))
	assert.Equal(t, heal.MsgPlannerInvalid, err.Error())
}

func TestHealPipeline_DiffFormatRetry(t *testing.T) {
	t.Parallel()

	t.Run("retry recovers", func(t *testing.T) {
		t.Parallel()
		f := newPipelineFixture(t)
		f.expectGenerations(testPlan, "Change add to return a + b.", testDiff, "body")
		f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
		f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(nil)
		f.expectCommitAndPR("body")

		_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
		require.NoError(t, err)
		assert.Contains(t, f.logs(t), "Patch invalid; retrying with stricter format")
		assert.Contains(t, f.prompt(2), "Previous apply error:\nInvalid diff format")
		assert.Contains(t, f.prompt(2), heal.SnippetNone)
	})

	t.Run("still invalid", func(t *testing.T) {
		t.Parallel()
		f := newPipelineFixture(t)
		f.expectGenerations(testPlan, "prose", "more prose")

		_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
		require.Error(t, err)
		assert.True(t, apperrors.IsPatchFormat(err))
		assert.Equal(t, heal.MsgPatchInvalid, err.Error())
	})
}

func TestHealPipeline_ApplyRetryUsesSnippet(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "src", "math.js"), []byte("return a\n"), 0o644))

	applyErr := apperrors.PatchApply("git apply failed:\nerror: patch failed: src/math.js:1\nerror: src/math.js: patch does not apply")
	retryDiff := strings.Replace(testDiff, "+return a + b", "+return a + b;", 1)

	f.expectGenerations(testPlan, testDiff, retryDiff, "body")
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	gomock.InOrder(
		f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(applyErr),
		f.patches.EXPECT().Apply(gomock.Any(), f.ws, retryDiff).Return(nil),
	)
	f.expectCommitAndPR("body")

	res, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.NoError(t, err)
	assert.Equal(t, retryDiff, res.PatchPreview)
	assert.Contains(t, f.logs(t), "Patch apply failed; retrying with tighter constraints")
	assert.Contains(t, f.prompt(2), "FILE_SNIPPET (src/math.js lines 1-2):\n1: return a\n2: ")
	assert.Contains(t, f.prompt(2), "patch does not apply")
}

func TestHealPipeline_RewriteEscalation(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "src"), 0o755))
	target := filepath.Join(f.dir, "src", "math.js")
	require.NoError(t, os.WriteFile(target, []byte("return a\n"), 0o644))

	applyErr := apperrors.PatchApply("git apply failed:\nerror: corrupt patch at line 6")
	rewrite := `{"files":[{"path":"src/math.js","content":"return a + b\n"}]}`
	gitDiff := "diff --git a/src/math.js b/src/math.js\n-return a\n+return a + b\n"

	f.expectGenerations(testPlan, testDiff, testDiff, rewrite, "body")
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(applyErr).Times(2)
	f.ws.EXPECT().Git(gomock.Any(), "diff").Return(gitDiff, nil)
	f.expectCommitAndPR("body")

	res, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.NoError(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "return a + b\n", string(content))
	assert.Equal(t, gitDiff, res.PatchPreview)
	assert.Contains(t, f.logs(t), "Patch apply failed again; attempting full-file rewrite")
	assert.Contains(t, f.prompt(3), heal.SnippetUnavailable)

	rewrites := f.metrics.Named("heal.patch.apply")
	require.Len(t, rewrites, 1)
	assert.Equal(t, map[string]string{"strategy": "rewrite", "result": "success"}, rewrites[0].Tags)
}

func TestHealPipeline_RewriteEmptyTwice(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	applyErr := apperrors.PatchApply("git apply failed:\nerror: corrupt patch at line 6")

	// Exactly five generations: plan, diff, corrective diff, rewrite, strict rewrite.
	f.expectGenerations(testPlan, testDiff, testDiff, `{"files": []}`, `{"files": []}`)
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(applyErr).Times(2)

	_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsRewriteEmpty(err))
	assert.Equal(t, heal.MsgRewriteEmpty, err.Error())
	assert.Contains(t, f.system(4), "MUST return a non-empty file rewrite payload")

	rewrites := f.metrics.Named("heal.patch.apply")
	require.Len(t, rewrites, 1)
	assert.Equal(t, "error", rewrites[0].Tags["result"])
}

func TestHealPipeline_RewriteInvalidJSON(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	applyErr := apperrors.PatchApply("git apply failed")

	f.expectGenerations(testPlan, testDiff, testDiff, "no json here")
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(applyErr).Times(2)

	_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsPatchFormat(err))
	assert.Equal(t, heal.MsgRewriteInvalidJSON, err.Error())
}

func TestHealPipeline_VerificationFails(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	f.expectGenerations(testPlan, testDiff)
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(nil)
	f.verifier.EXPECT().Verify(gomock.Any(), f.dir, "npm test").
		Return("", apperrors.Verification("Verification failed (exit 1):\n$ npm test\n2 failing"))

	_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsVerification(err))
	assert.Contains(t, err.Error(), "2 failing")

	job, _ := f.store.Get(f.jobID)
	assert.Equal(t, "Verifying: npm test", job.Step)
}

func TestHealPipeline_NonEscalatingApplyError(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	f.expectGenerations(testPlan, testDiff)
	f.ws.EXPECT().CreateBranch(gomock.Any(), testBranch).Return(nil)
	f.patches.EXPECT().Apply(gomock.Any(), f.ws, testDiff).Return(context.Canceled)

	_, err := f.pipeline.Run(context.Background(), f.jobID, testHealRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestHealPipeline_RunFetchFails(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	scm := mocks.NewMockSourceControl(ctrl)
	progress := mocks.NewMockJobProgress(ctrl)

	pipeline := MustNewHealPipeline(HealPipelineOptions{
		SourceControl: scm,
		Generator:     mocks.NewMockGenerator(ctrl),
		Cloner:        mocks.NewMockCloner(ctrl),
		Verifier:      mocks.NewMockVerifier(ctrl),
		Progress:      progress,
	})
	gomock.InOrder(
		progress.EXPECT().Patch("job-1", model.StepPatch(StepFetchingRun)),
		progress.EXPECT().AppendLog("job-1", "Fetching run metadata"),
		scm.EXPECT().GetRun(gomock.Any(), testRef(), int64(42)).Return(nil, apperrors.NotFound("Not Found")),
	)

	_, err := pipeline.Run(context.Background(), "job-1", testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// Each step is published before the call it describes starts.
func TestHealPipeline_PublishesStepBeforeEachCall(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	scm := mocks.NewMockSourceControl(ctrl)
	progress := mocks.NewMockJobProgress(ctrl)

	pipeline := MustNewHealPipeline(HealPipelineOptions{
		SourceControl: scm,
		Generator:     mocks.NewMockGenerator(ctrl),
		Cloner:        mocks.NewMockCloner(ctrl),
		Verifier:      mocks.NewMockVerifier(ctrl),
		Progress:      progress,
	})
	gomock.InOrder(
		progress.EXPECT().Patch("job-2", model.StepPatch(StepFetchingRun)),
		progress.EXPECT().AppendLog("job-2", "Fetching run metadata"),
		scm.EXPECT().GetRun(gomock.Any(), testRef(), int64(42)).Return(&model.Run{ID: 42, HeadSHA: testHeadSHA}, nil),
		progress.EXPECT().Patch("job-2", model.StepPatch(StepFetchingLogs)),
		progress.EXPECT().AppendLog("job-2", "Downloading run logs"),
		scm.EXPECT().RunLog(gomock.Any(), testRef(), int64(42)).Return("", apperrors.Call("GitHub logs failed: 410")),
	)

	_, err := pipeline.Run(context.Background(), "job-2", testHealRequest())
	require.Error(t, err)
	assert.True(t, apperrors.IsCall(err))
}

func TestNewHealPipeline_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := NewHealPipeline(HealPipelineOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SourceControl is required")
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRateLimited(apperrors.RateLimit("OpenAI error 429")))
	assert.True(t, IsRateLimited(apperrors.Call("API Rate Limit exceeded for installation")))
	assert.False(t, IsRateLimited(apperrors.Call("OpenAI error 500")))
	assert.False(t, IsRateLimited(nil))
}
