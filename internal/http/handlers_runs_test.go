package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/mocks"
)

func newRunHandlers(t *testing.T, defaults HealDefaults) (*RunHandlers, *mocks.MockSourceControl) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sc := mocks.NewMockSourceControl(ctrl)
	return &RunHandlers{SourceControl: sc, Defaults: defaults}, sc
}

func TestListRuns(t *testing.T) {
	h, sc := newRunHandlers(t, testDefaults())

	ref := model.RepoRef{Owner: "acme", Repo: "web", Token: "ghp_default"}
	sc.EXPECT().ListRuns(gomock.Any(), ref, 15).Return([]model.Run{
		{ID: 2, Name: "CI", Conclusion: "failure"},
		{ID: 1, Name: "CI", Conclusion: "success"},
	}, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []model.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, int64(2), resp.Runs[0].ID)
}

func TestListRuns_QueryOverridesDefaults(t *testing.T) {
	h, sc := newRunHandlers(t, testDefaults())

	ref := model.RepoRef{Owner: "octo", Repo: "api", Token: "ghp_user"}
	sc.EXPECT().ListRuns(gomock.Any(), ref, 15).Return(nil, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs?owner=octo&repo=api&token=ghp_user", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestListRuns_Errors(t *testing.T) {
	t.Run("missing repo", func(t *testing.T) {
		h, _ := newRunHandlers(t, HealDefaults{Token: "ghp"})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs?owner=acme", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing owner/repo", decodeError(t, rec).Error)
	})

	t.Run("missing token", func(t *testing.T) {
		h, _ := newRunHandlers(t, HealDefaults{})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs?owner=acme&repo=web", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing GitHub token", decodeError(t, rec).Error)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h, sc := newRunHandlers(t, testDefaults())
		sc.EXPECT().ListRuns(gomock.Any(), gomock.Any(), 15).
			Return(nil, apperrors.Call("GitHub list runs failed: 401"))
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "GitHub list runs failed: 401", decodeError(t, rec).Error)
	})
}

func TestGetRun(t *testing.T) {
	h, sc := newRunHandlers(t, testDefaults())
	ref := model.RepoRef{Owner: "acme", Repo: "web", Token: "ghp_default"}

	fullLog := strings.Repeat("a", 500) + strings.Repeat("b", RunLogTailChars)
	sc.EXPECT().GetRun(gomock.Any(), ref, int64(99)).Return(&model.Run{ID: 99, Conclusion: "failure"}, nil)
	sc.EXPECT().RunLog(gomock.Any(), ref, int64(99)).Return(fullLog, nil)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/run?id=99", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run model.Run `json:"run"`
		Log string    `json:"log"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(99), resp.Run.ID)
	assert.Len(t, resp.Log, RunLogTailChars)
	assert.NotContains(t, resp.Log, "a")
}

func TestGetRun_Errors(t *testing.T) {
	t.Run("missing id checked first", func(t *testing.T) {
		h, _ := newRunHandlers(t, HealDefaults{})
		for _, target := range []string{"/api/run", "/api/run?id=abc", "/api/run?id=0"} {
			rec := httptest.NewRecorder()
			h.Get(rec, httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, http.StatusBadRequest, rec.Code, target)
			assert.Equal(t, "Missing id", decodeError(t, rec).Error)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		h, _ := newRunHandlers(t, HealDefaults{Owner: "acme", Repo: "web"})
		rec := httptest.NewRecorder()
		h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/run?id=5", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing GitHub token", decodeError(t, rec).Error)
	})

	t.Run("log download failure", func(t *testing.T) {
		h, sc := newRunHandlers(t, testDefaults())
		sc.EXPECT().GetRun(gomock.Any(), gomock.Any(), int64(5)).Return(&model.Run{ID: 5}, nil)
		sc.EXPECT().RunLog(gomock.Any(), gomock.Any(), int64(5)).Return("", apperrors.Call("GitHub logs failed: 410"))
		rec := httptest.NewRecorder()
		h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/run?id=5", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "GitHub logs failed: 410", decodeError(t, rec).Error)
	})

	t.Run("run lookup failure", func(t *testing.T) {
		h, sc := newRunHandlers(t, testDefaults())
		sc.EXPECT().GetRun(gomock.Any(), gomock.Any(), int64(6)).Return(nil, apperrors.NotFound("run not found"))
		sc.EXPECT().RunLog(gomock.Any(), gomock.Any(), int64(6)).Return("", nil).AnyTimes()
		rec := httptest.NewRecorder()
		h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/run?id=6", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "get_failed", decodeError(t, rec).Code)
	})
}
