package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/data"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/mocks"
	"github.com/target/selfheal/internal/service"
)

// recordingRunner reports every request it receives and completes immediately.
type recordingRunner struct {
	requests chan model.HealRequest
}

func (r *recordingRunner) Run(_ context.Context, _ string, req model.HealRequest) (*model.HealResult, error) {
	r.requests <- req
	return &model.HealResult{PRURL: "https://github.com/acme/web/pull/7", Bundle: "bundle"}, nil
}

type healFixture struct {
	handlers *HealHandlers
	store    *data.JobStore
	svc      *service.JobService
	runner   *recordingRunner
}

func testDefaults() HealDefaults {
	return HealDefaults{
		Owner:            "acme",
		Repo:             "web",
		Base:             "main",
		Token:            "ghp_default",
		Model:            "gpt-4.1-mini",
		Temperature:      0.2,
		VerifyCommand:    "npm test",
		APIKeyConfigured: true,
	}
}

func newHealFixture(t *testing.T, defaults HealDefaults, archive core.JobArchive) *healFixture {
	t.Helper()
	store := data.NewJobStore(data.JobStoreOptions{})
	runner := &recordingRunner{requests: make(chan model.HealRequest, 4)}
	svc := service.MustNewJobService(service.JobServiceOptions{
		Store:   store,
		Runner:  runner,
		Archive: archive,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &healFixture{
		handlers: &HealHandlers{Svc: svc, Defaults: defaults},
		store:    store,
		svc:      svc,
		runner:   runner,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func postStart(h *HealHandlers, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/api/heal/start", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Start(w, r)
	return w
}

func TestStartHeal_AppliesDefaults(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)

	rec := postStart(f.handlers, `{"runId": 42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["jobId"])

	select {
	case req := <-f.runner.requests:
		assert.Equal(t, model.HealRequest{
			Owner:         "acme",
			Repo:          "web",
			Base:          "main",
			Token:         "ghp_default",
			RunID:         42,
			Model:         "gpt-4.1-mini",
			Temperature:   0.2,
			VerifyCommand: "npm test",
		}, req)
	case <-time.After(5 * time.Second):
		t.Fatal("heal runner was never invoked")
	}

	require.Eventually(t, func() bool {
		job, ok := f.store.Get(resp["jobId"])
		return ok && job.Status == model.JobStatusDone
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartHeal_BodyOverridesAndClampsTemperature(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)

	rec := postStart(f.handlers, `{"owner":"octo","repo":"api","base":"develop","token":"ghp_user",`+
		`"runId":7,"model":"gpt-5-mini","temperature":3.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := <-f.runner.requests
	assert.Equal(t, "octo", req.Owner)
	assert.Equal(t, "api", req.Repo)
	assert.Equal(t, "develop", req.Base)
	assert.Equal(t, "ghp_user", req.Token)
	assert.Equal(t, "gpt-5-mini", req.Model)
	assert.InDelta(t, 1.0, req.Temperature, 0.0001)
	assert.Equal(t, "npm test", req.VerifyCommand, "verify command always comes from server config")
}

func TestStartHeal_ZeroTemperatureIsKept(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)

	rec := postStart(f.handlers, `{"runId":7,"temperature":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	req := <-f.runner.requests
	assert.Zero(t, req.Temperature)
}

func TestStartHeal_ValidationOrder(t *testing.T) {
	noKey := testDefaults()
	noKey.APIKeyConfigured = false

	tests := []struct {
		name     string
		defaults HealDefaults
		body     string
		want     string
	}{
		{"owner/repo before everything", HealDefaults{}, `{}`, "Missing owner/repo"},
		{"token before key", HealDefaults{Owner: "acme", Repo: "web"}, `{"runId":1}`, "Missing GitHub token"},
		{"key before runId", noKey, `{}`, "Missing OpenAI key"},
		{"runId last", testDefaults(), `{"runId":0}`, "Missing runId"},
		{"negative runId", testDefaults(), `{"runId":-4}`, "Missing runId"},
		{"blank owner ignored", HealDefaults{}, `{"owner":"  ","repo":"web"}`, "Missing owner/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHealFixture(t, tt.defaults, nil)
			rec := postStart(f.handlers, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.want, body.Error)
			assert.Equal(t, string(apperrors.ErrCodeValidation), body.Code)
			assert.Zero(t, f.store.Len(), "no job may be created for invalid input")
		})
	}
}

func TestStartHeal_InvalidJSON(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)

	for _, body := range []string{`{"runId":`, `{"runId":1,"verifyCommand":"rm -rf /"}`, `{"runId":"12"}`} {
		rec := postStart(f.handlers, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid_json", decodeError(t, rec).Code)
	}
	assert.Zero(t, f.store.Len())
}

func TestStartHeal_ShuttingDown(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	rec := postStart(f.handlers, `{"runId":9}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting_down", decodeError(t, rec).Code)
}

func TestHealStatus(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)
	job := f.store.Create()
	f.store.AppendLog(job.ID, "Queued")

	t.Run("missing jobId", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing jobId", decodeError(t, rec).Error)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status?jobId=nope", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Not found", decodeError(t, rec).Error)
	})

	t.Run("live job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status?jobId="+job.ID, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Job model.Job `json:"job"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, job.ID, resp.Job.ID)
		assert.Equal(t, model.JobStatusQueued, resp.Job.Status)
		assert.Len(t, resp.Job.Logs, 1)
	})
}

func TestHealStatus_FallsBackToArchive(t *testing.T) {
	ctrl := gomock.NewController(t)
	archive := mocks.NewMockJobArchive(ctrl)
	f := newHealFixture(t, testDefaults(), archive)

	archived := &model.Job{ID: "old-job", Status: model.JobStatusDone, Step: "done", Logs: []string{}}
	archive.EXPECT().Get(gomock.Any(), "old-job").Return(archived, nil)
	archive.EXPECT().Get(gomock.Any(), "gone").Return(nil, apperrors.NotFound("Job not found"))
	archive.EXPECT().Get(gomock.Any(), "broken").Return(nil, apperrors.Internal("redis down"))

	rec := httptest.NewRecorder()
	f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status?jobId=old-job", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"done"`)

	rec = httptest.NewRecorder()
	f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status?jobId=gone", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.handlers.Status(rec, httptest.NewRequest(http.MethodGet, "/api/heal/status?jobId=broken", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeInternal), decodeError(t, rec).Code)
}

func TestHealDebug(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)
	withBundle := f.store.Create()
	f.store.Patch(withBundle.ID, model.HealResult{Bundle: "=== CI LOG TAIL ===\nboom"}.Patch())
	without := f.store.Create()

	rec := httptest.NewRecorder()
	f.handlers.Debug(rec, httptest.NewRequest(http.MethodGet, "/api/heal/debug?jobId="+withBundle.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		`attachment; filename="selfheal-bundle-`+withBundle.ID+`.txt"`,
		rec.Header().Get("Content-Disposition"),
	)
	assert.Equal(t, "=== CI LOG TAIL ===\nboom", rec.Body.String())

	for _, id := range []string{without.ID, "missing"} {
		rec = httptest.NewRecorder()
		f.handlers.Debug(rec, httptest.NewRequest(http.MethodGet, "/api/heal/debug?jobId="+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Bundle not found", decodeError(t, rec).Error)
	}

	rec = httptest.NewRecorder()
	f.handlers.Debug(rec, httptest.NewRequest(http.MethodGet, "/api/heal/debug", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealClearLogs(t *testing.T) {
	f := newHealFixture(t, testDefaults(), nil)
	job := f.store.Create()
	for _, line := range []string{"one", "two", "three"} {
		f.store.AppendLog(job.ID, line)
	}

	rec := httptest.NewRecorder()
	f.handlers.ClearLogs(rec, httptest.NewRequest(http.MethodPost, "/api/heal/logs/clear?jobId="+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got, ok := f.store.Get(job.ID)
	require.True(t, ok)
	require.Len(t, got.Logs, 1)
	assert.True(t, strings.HasSuffix(got.Logs[0], "three"))

	rec = httptest.NewRecorder()
	f.handlers.ClearLogs(rec, httptest.NewRequest(http.MethodPost, "/api/heal/logs/clear?jobId=missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
