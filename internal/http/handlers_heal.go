// Package httpx provides the HTTP handlers and middleware for the self-heal API.
package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/service"
)

// HealDefaults are the server-side fallbacks applied to heal and run requests.
type HealDefaults struct {
	Owner         string
	Repo          string
	Base          string
	Token         string
	Model         string
	Temperature   float64
	VerifyCommand string
	// APIKeyConfigured reports whether the generation service has a credential.
	APIKeyConfigured bool
}

// startHealRequest is the body of POST /api/heal/start. Absent fields fall back to HealDefaults.
type startHealRequest struct {
	Owner       string   `json:"owner"`
	Repo        string   `json:"repo"`
	Base        string   `json:"base"`
	Token       string   `json:"token"`
	RunID       int64    `json:"runId"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

// HealHandlers provides HTTP handlers for heal jobs.
type HealHandlers struct {
	Svc      *service.JobService
	Defaults HealDefaults
	Logger   *slog.Logger
}

// Start validates the request and queues a heal job.
func (h *HealHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var body startHealRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	req := h.buildRequest(body)
	switch {
	case req.Owner == "" || req.Repo == "":
		badRequest(w, "repo", "Missing owner/repo")
		return
	case req.Token == "":
		badRequest(w, "token", "Missing GitHub token")
		return
	case !h.Defaults.APIKeyConfigured:
		badRequest(w, "apiKey", "Missing OpenAI key")
		return
	case req.RunID <= 0:
		badRequest(w, "runId", "Missing runId")
		return
	}

	job, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		if apperrors.IsConflict(err) {
			WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "shutting_down", Err: err})
			return
		}
		writeServiceError(w, err, "start_failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"jobId": job.ID})
}

func (h *HealHandlers) buildRequest(body startHealRequest) model.HealRequest {
	d := h.Defaults
	temp := d.Temperature
	if body.Temperature != nil {
		temp = *body.Temperature
	}
	return model.HealRequest{
		Owner:         firstNonEmpty(body.Owner, d.Owner),
		Repo:          firstNonEmpty(body.Repo, d.Repo),
		Base:          firstNonEmpty(body.Base, d.Base, "main"),
		Token:         firstNonEmpty(body.Token, d.Token),
		RunID:         body.RunID,
		Model:         firstNonEmpty(body.Model, d.Model),
		Temperature:   config.ClampTemperature(temp),
		VerifyCommand: d.VerifyCommand,
	}
}

// Status returns the job snapshot for ?jobId=.
func (h *HealHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			writeServiceError(w, apperrors.NotFound("Not found"), "")
			return
		}
		writeServiceError(w, err, "status_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]*model.Job{"job": job})
}

// Debug downloads the job's context bundle as a text attachment.
func (h *HealHandlers) Debug(w http.ResponseWriter, r *http.Request) {
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil && !apperrors.IsNotFound(err) {
		writeServiceError(w, err, "debug_failed")
		return
	}
	if job == nil || job.Bundle == "" {
		writeServiceError(w, apperrors.NotFound("Bundle not found"), "")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "selfheal-bundle-"+id+".txt"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(job.Bundle)); err != nil && h.Logger != nil {
		h.Logger.DebugContext(r.Context(), "write bundle failed", "job_id", id, "error", err)
	}
}

// ClearLogs trims a live job's logs to the most recent entry.
func (h *HealHandlers) ClearLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := requireJobID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.ClearLogs(r.Context(), id); err != nil {
		writeServiceError(w, err, "clear_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func requireJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("jobId"))
	if id == "" {
		badRequest(w, "jobId", "Missing jobId")
		return "", false
	}
	return id, true
}

// firstNonEmpty returns the first non-blank value, trimmed.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
