package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/migrate"
)

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	require.Contains(t, out, "Usage: selfheal-admin <command> [flags]")
	idx := func(name string) int { return strings.Index(out, "  "+name+" ") }
	for _, name := range []string{"heal", "job", "migrate", "run-log", "runs"} {
		require.GreaterOrEqual(t, idx(name), 0, "missing %s", name)
	}
	assert.Less(t, idx("heal"), idx("job"))
	assert.Less(t, idx("migrate"), idx("runs"))
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	assert.False(t, opts.Status)

	opts, err = parseMigrateFlags([]string{"-status", "-timeout", "10s"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
	assert.Equal(t, 10*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"})
	require.Error(t, err)
}

func TestParseShowJobFlags(t *testing.T) {
	_, err := parseShowJobFlags(nil)
	require.ErrorContains(t, err, "--id")

	opts, err := parseShowJobFlags([]string{"-id", " job-1 ", "-o", "YAML"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", opts.JobID)
	assert.Equal(t, outputYAML, opts.Output)

	_, err = parseShowJobFlags([]string{"-id", "job-1", "-o", "xml"})
	require.ErrorContains(t, err, "invalid output format")
}

func TestParseHealFlagsUsesConfigDefaults(t *testing.T) {
	cfg := &config.AppConfig{
		GitHub: config.GitHubConfig{Owner: "acme", Repo: "widgets", Token: "ghp", Base: "main"},
		OpenAI: config.OpenAIConfig{Model: "gpt-4.1-mini", Temperature: 0.2},
		Heal:   config.HealConfig{VerifyCommand: "npm test"},
	}

	_, err := parseHealFlags(nil, cfg)
	require.ErrorContains(t, err, "--run-id")

	opts, err := parseHealFlags([]string{"-run-id", "42", "-temperature", "3", "-base", "develop"}, cfg)
	require.NoError(t, err)

	ref, err := opts.Repo.ref()
	require.NoError(t, err)
	req := opts.request(ref)
	assert.Equal(t, model.HealRequest{
		Owner:         "acme",
		Repo:          "widgets",
		Base:          "develop",
		Token:         "ghp",
		RunID:         42,
		Model:         "gpt-4.1-mini",
		Temperature:   1,
		VerifyCommand: "npm test",
	}, req)
	require.NoError(t, req.Validate())
}

func TestRepoFlagsRequireOwnerAndToken(t *testing.T) {
	_, err := (&repoFlags{Owner: "acme"}).ref()
	require.ErrorContains(t, err, "--owner and --repo")

	_, err = (&repoFlags{Owner: "acme", Repo: "widgets"}).ref()
	require.ErrorContains(t, err, "--token")
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, nil))
	assert.Equal(t, "no workflow runs found\n", buf.String())

	buf.Reset()
	require.NoError(t, printRuns(&buf, []model.Run{{
		ID:         7,
		Name:       "CI",
		Status:     "completed",
		Conclusion: "failure",
		HeadBranch: "main",
		HeadSHA:    "0123456789abcdef",
		CreatedAt:  time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Equal(t, []string{"7", "completed", "failure", "main", "0123456", "CI", "2026-01-15T10:30:00Z"}, strings.Fields(lines[1]))
}

func TestPrintMigrationStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMigrationStatus(&buf, []migrate.Status{
		{Version: "0001_heal_jobs.sql", Applied: true},
	}))
	assert.Contains(t, buf.String(), "0001_heal_jobs.sql")
	assert.Contains(t, buf.String(), "true")
}

func TestPrintJobFormats(t *testing.T) {
	job := &model.Job{
		ID:     "job-1",
		Status: model.JobStatusDone,
		Step:   "done",
		Logs:   []string{"opened PR"},
		PRURL:  "https://github.com/acme/widgets/pull/9",
	}

	var js bytes.Buffer
	require.NoError(t, printJob(&js, job, outputJSON))
	assert.Contains(t, js.String(), `"prUrl": "https://github.com/acme/widgets/pull/9"`)

	var ys bytes.Buffer
	require.NoError(t, printJob(&ys, job, outputYAML))
	assert.Contains(t, ys.String(), "status: done\n")
	assert.Contains(t, ys.String(), "prUrl: https://github.com/acme/widgets/pull/9\n")
	assert.NotContains(t, ys.String(), "verifyLog")
}

type scriptedJobs struct {
	snapshots []*model.Job
	calls     int
}

func (s *scriptedJobs) Get(context.Context, string) (*model.Job, error) {
	i := min(s.calls, len(s.snapshots)-1)
	s.calls++
	return s.snapshots[i], nil
}

func TestFollowJobStreamsNewLines(t *testing.T) {
	jobs := &scriptedJobs{snapshots: []*model.Job{
		{ID: "j", Status: model.JobStatusRunning, Logs: []string{"a"}},
		{ID: "j", Status: model.JobStatusRunning, Logs: []string{"a", "b"}},
		{ID: "j", Status: model.JobStatusDone, Logs: []string{"a", "b", "c"}, PRURL: "https://example/pr/1"},
	}}

	var buf bytes.Buffer
	job, err := followJob(context.Background(), followJobRequest{
		Jobs:     jobs,
		JobID:    "j",
		Interval: time.Millisecond,
		Out:      &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", buf.String())
	assert.Equal(t, model.JobStatusDone, job.Status)

	var out bytes.Buffer
	require.NoError(t, reportOutcome(&out, job))
	assert.Contains(t, out.String(), "pull request: https://example/pr/1")
}

func TestFollowJobStopsOnCancel(t *testing.T) {
	jobs := &scriptedJobs{snapshots: []*model.Job{{ID: "j", Status: model.JobStatusQueued, Logs: []string{}}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := followJob(ctx, followJobRequest{Jobs: jobs, JobID: "j", Interval: time.Hour, Out: io.Discard})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.JobStatusQueued, job.Status)
}

func TestReportOutcomeFailure(t *testing.T) {
	err := reportOutcome(io.Discard, &model.Job{ID: "j", Status: model.JobStatusError, Error: "Verification failed"})
	require.ErrorContains(t, err, "Verification failed")
}

func newGitHubCommandContext(t *testing.T, h http.Handler) (*commandContext, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.DiscardHandler),
		Config: config.AppConfig{GitHub: config.GitHubConfig{
			APIURL: srv.URL,
			Owner:  "acme",
			Repo:   "widgets",
			Token:  "ghp",
		}},
		Out: &out,
	}, &out
}

func TestRunListRuns(t *testing.T) {
	cmdCtx, out := newGitHubCommandContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/runs", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("per_page"))
		_, _ = io.WriteString(w, `{"workflow_runs":[{"id":5,"name":"CI","status":"completed","conclusion":"failure","head_sha":"abcdef1234"}]}`)
	}))

	require.NoError(t, runListRuns(cmdCtx, []string{"-limit", "3"}))
	assert.Contains(t, out.String(), "abcdef1")
	assert.Contains(t, out.String(), "failure")
}

func TestRunRunLogPrintsTail(t *testing.T) {
	cmdCtx, out := newGitHubCommandContext(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/actions/runs/9/logs", r.URL.Path)
		_, _ = io.WriteString(w, "first line\nlast line")
	}))

	require.NoError(t, runRunLog(cmdCtx, []string{"-id", "9", "-tail", "9"}))
	assert.Equal(t, "last line\n", out.String())
}

func TestRunRunLogSurfacesNotFound(t *testing.T) {
	cmdCtx, _ := newGitHubCommandContext(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Not Found"}`)
	}))

	err := runRunLog(cmdCtx, []string{"-id", "9"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestShowJobRequiresArchive(t *testing.T) {
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.DiscardHandler),
		Config: config.AppConfig{Archive: config.ArchiveConfig{Backend: config.ArchiveBackendNone}},
		Out:    io.Discard,
	}
	require.ErrorIs(t, runShowJob(cmdCtx, []string{"-id", "j"}), errArchiveDisabled)
}
