// Package github is the source-control host adapter: workflow runs, run logs and pull requests.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
)

const (
	// DefaultBaseURL is the public REST API root.
	DefaultBaseURL = "https://api.github.com"
	// DefaultRunsPageSize is how many recent runs ListRuns asks for.
	DefaultRunsPageSize = 15
	// APIVersion pins the REST API version header.
	APIVersion = "2022-11-28"

	defaultMaxLogBytes = 256 << 20
	maxJSONBytes       = 16 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// HTTPClient is the base transport; auth is layered on top per request.
	HTTPClient *http.Client
	UserAgent  string
	// MaxLogBytes caps the downloaded log archive.
	MaxLogBytes int64
	Logger      *slog.Logger
}

// Client talks to the REST API with a per-repository bearer token.
type Client struct {
	baseURL     string
	base        *http.Client
	userAgent   string
	maxLogBytes int64
	logger      *slog.Logger
}

var _ core.SourceControl = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 2 * time.Minute}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxLog := opts.MaxLogBytes
	if maxLog <= 0 {
		maxLog = defaultMaxLogBytes
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "selfheal"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		base:        base,
		userAgent:   ua,
		maxLogBytes: maxLog,
		logger:      logger.With("component", "github"),
	}
}

// authed returns a client that signs requests with ref's token. Redirects to
// another host are not followed so the token never leaves the API host.
func (c *Client) authed(ctx context.Context, token string) *http.Client {
	hc := &http.Client{
		Timeout:   c.base.Timeout,
		Transport: c.base.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if req.URL.Host != via[0].URL.Host {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	if token == "" {
		return hc
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	authedClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	authedClient.Timeout = hc.Timeout
	authedClient.CheckRedirect = hc.CheckRedirect
	return authedClient
}

func (c *Client) repoURL(ref model.RepoRef, suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", c.baseURL, url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), suffix)
}

func (c *Client) newRequest(ctx context.Context, method, u string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON performs a request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, ref model.RepoRef, method, u string, body, out any) error {
	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return err
	}
	resp, err := c.authed(ctx, ref.Token).Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBytes))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCall, "read GitHub response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data, "")
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCall, "decode GitHub response")
	}
	return nil
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrap(err, apperrors.ErrCodeCall, "GitHub request failed")
}

// statusError maps a non-2xx response to an AppError carrying the API's message.
func statusError(status int, body []byte, prefix string) error {
	var payload struct {
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = payload.Message
	}
	if prefix != "" {
		msg = fmt.Sprintf("%s %d: %s", prefix, status, strings.TrimSpace(string(body)))
	} else if msg == "" {
		msg = "GitHub error " + strconv.Itoa(status)
	}

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(msg)
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && strings.Contains(strings.ToLower(msg), "rate limit"):
		return apperrors.RateLimit(msg)
	default:
		return apperrors.Call(msg)
	}
}

// ListRuns returns the most recent workflow runs, newest first.
func (c *Client) ListRuns(ctx context.Context, ref model.RepoRef, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultRunsPageSize
	}
	var out struct {
		WorkflowRuns []model.Run `json:"workflow_runs"`
	}
	u := c.repoURL(ref, "/actions/runs?per_page="+strconv.Itoa(limit))
	if err := c.doJSON(ctx, ref, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	if out.WorkflowRuns == nil {
		return []model.Run{}, nil
	}
	return out.WorkflowRuns, nil
}

// GetRun returns one run's metadata.
func (c *Client) GetRun(ctx context.Context, ref model.RepoRef, runID int64) (*model.Run, error) {
	var run model.Run
	u := c.repoURL(ref, "/actions/runs/"+strconv.FormatInt(runID, 10))
	if err := c.doJSON(ctx, ref, http.MethodGet, u, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunLog downloads the run's log archive and returns its decoded text.
func (c *Client) RunLog(ctx context.Context, ref model.RepoRef, runID int64) (string, error) {
	data, err := c.downloadLogs(ctx, ref, runID)
	if err != nil {
		return "", err
	}
	text, err := DecodeLog(data)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeCall, "decode run logs")
	}
	c.logger.DebugContext(ctx, "run logs downloaded",
		"owner", ref.Owner, "repo", ref.Repo, "run_id", runID,
		"archive_bytes", len(data), "text_bytes", len(text))
	return text, nil
}

func (c *Client) downloadLogs(ctx context.Context, ref model.RepoRef, runID int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.repoURL(ref, "/actions/runs/"+strconv.FormatInt(runID, 10)+"/logs"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.authed(ctx, ref.Token).Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	// The archive lives on a storage host behind a signed URL; fetch it without credentials.
	if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode <= 399 && loc != "" {
		target, err := resp.Request.URL.Parse(loc)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCall, "invalid log redirect")
		}
		storageReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		storageReq.Header.Set("User-Agent", c.userAgent)
		resp2, err := c.base.Do(storageReq)
		if err != nil {
			return nil, transportError(ctx, err)
		}
		defer resp2.Body.Close()
		resp = resp2
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(resp.StatusCode, body, "GitHub logs error")
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxLogBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCall, "read run logs")
	}
	return data, nil
}

// CreatePullRequest opens a pull request and returns its number and URL.
func (c *Client) CreatePullRequest(ctx context.Context, ref model.RepoRef, in model.PullRequestInput) (*model.PullRequest, error) {
	var pr model.PullRequest
	if err := c.doJSON(ctx, ref, http.MethodPost, c.repoURL(ref, "/pulls"), in, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}
