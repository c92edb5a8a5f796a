package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/target/selfheal/internal/adapters/github"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/heal"
	"github.com/target/selfheal/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// RunLogTailChars is how much of a run's decoded log GET /api/run returns.
const RunLogTailChars = 24000

// RunHandlers provides HTTP handlers for browsing CI runs.
type RunHandlers struct {
	SourceControl core.SourceControl
	Defaults      HealDefaults
}

// List returns the most recent workflow runs of a repository.
func (h *RunHandlers) List(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.repoRef(w, r)
	if !ok {
		return
	}
	runs, err := h.SourceControl.ListRuns(r.Context(), ref, github.DefaultRunsPageSize)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Get returns one run with the tail of its decoded log.
func (h *RunHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("id")), 10, 64)
	if id <= 0 {
		badRequest(w, "id", "Missing id")
		return
	}
	ref, ok := h.repoRef(w, r)
	if !ok {
		return
	}

	// Run metadata and the log archive are independent downloads.
	g, gctx := errgroup.WithContext(r.Context())
	var run *model.Run
	var log string
	g.Go(func() error {
		var err error
		run, err = h.SourceControl.GetRun(gctx, ref, id)
		if err != nil {
			return runFetchError{code: "get_failed", err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		log, err = h.SourceControl.RunLog(gctx, ref, id)
		if err != nil {
			return runFetchError{code: "log_failed", err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		code := "get_failed"
		var fe runFetchError
		if errors.As(err, &fe) {
			code = fe.code
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: code, Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"run": run,
		"log": heal.Tail(log, RunLogTailChars),
	})
}

func (h *RunHandlers) repoRef(w http.ResponseWriter, r *http.Request) (model.RepoRef, bool) {
	q := r.URL.Query()
	ref := model.RepoRef{
		Owner: firstNonEmpty(q.Get("owner"), h.Defaults.Owner),
		Repo:  firstNonEmpty(q.Get("repo"), h.Defaults.Repo),
		Token: firstNonEmpty(q.Get("token"), h.Defaults.Token),
	}
	if ref.Owner == "" || ref.Repo == "" {
		badRequest(w, "repo", "Missing owner/repo")
		return ref, false
	}
	if ref.Token == "" {
		badRequest(w, "token", "Missing GitHub token")
		return ref, false
	}
	return ref, true
}

// runFetchError tags a failed download with the error code reported to the client.
type runFetchError struct {
	code string
	err  error
}

func (e runFetchError) Error() string { return e.err.Error() }

func (e runFetchError) Unwrap() error { return e.err }
