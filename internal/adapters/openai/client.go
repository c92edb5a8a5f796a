// Package openai implements the rate-limited text-generation client used by the heal
// pipeline. All calls made through one Client share a single admission queue.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/semaphore"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/observability/metrics"
	"github.com/target/selfheal/internal/observability/statsd"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultMinDelay is the minimum spacing between admitted calls.
	DefaultMinDelay = 25 * time.Second
	// DefaultMaxRetries bounds retries on 429 and 5xx.
	DefaultMaxRetries = 4

	baseBackoff = 2 * time.Second
	maxBackoff  = 15 * time.Second
	maxJitter   = 500 * time.Millisecond

	maxResponseBytes = 8 << 20

	outputTextExpr   = "output[].content[] | [?type=='output_text'].text"
	errorMessageExpr = "error.message"
)

// Clock abstracts time so admission spacing and backoff can be tested without waiting.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	MinDelay   time.Duration
	MaxRetries int
	// NoTemperatureModels lists model-name prefixes that reject a temperature parameter.
	NoTemperatureModels []string

	HTTPClient *http.Client
	Clock      Clock
	// Jitter returns the random component added to computed backoff.
	Jitter  func() time.Duration
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Client calls the Responses endpoint through a single serialized admission queue.
type Client struct {
	baseURL    string
	apiKey     string
	minDelay   time.Duration
	maxRetries int
	noTemp     []string

	http    *http.Client
	clock   Clock
	jitter  func() time.Duration
	logger  *slog.Logger
	metrics statsd.Sink

	// gate admits one upstream request at a time; lastStart is guarded by it.
	gate      *semaphore.Weighted
	lastStart time.Time
}

var _ core.Generator = (*Client)(nil)

// NewClient validates options and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, apperrors.ValidationField("apiKey", "Missing OpenAI key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.MinDelay < 0 {
		return nil, fmt.Errorf("openai: min delay must be >= 0, got %s", opts.MinDelay)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("openai: max retries must be >= 0, got %d", opts.MaxRetries)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Minute}
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = func() time.Duration { return rand.N(maxJitter + time.Millisecond) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	noTemp := make([]string, 0, len(opts.NoTemperatureModels))
	for _, p := range opts.NoTemperatureModels {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			noTemp = append(noTemp, p)
		}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		minDelay:   opts.MinDelay,
		maxRetries: opts.MaxRetries,
		noTemp:     noTemp,
		http:       hc,
		clock:      clock,
		jitter:     jitter,
		logger:     logger.With("component", "openai"),
		metrics:    opts.Metrics,
		gate:       semaphore.NewWeighted(1),
	}, nil
}

// MustNewClient is like NewClient but panics on error.
func MustNewClient(opts Options) *Client {
	c, err := NewClient(opts)
	if err != nil {
		panic(err)
	}
	return c
}

type responsesRequest struct {
	Model       string          `json:"model"`
	Input       []model.Message `json:"input"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// upstreamReply is one raw HTTP exchange.
type upstreamReply struct {
	status int
	header http.Header
	body   []byte
}

// Generate sends the conversation and returns the concatenated output text.
func (c *Client) Generate(ctx context.Context, req model.GenerateRequest) (string, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode responses request: %w", err)
	}

	started := c.clock.Now()
	retries := 0
	var reply *upstreamReply
	for attempt := 0; ; attempt++ {
		reply, err = c.send(ctx, body)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeCall, "OpenAI request failed")
		}
		if !retryable(reply.status) || attempt >= c.maxRetries {
			break
		}

		delay := c.backoff(attempt, reply.header)
		c.logger.WarnContext(ctx, "generation call retrying",
			"model", req.Model,
			"status", reply.status,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", delay,
		)
		retries++
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeCall, "OpenAI retry interrupted")
		}
	}

	metrics.EmitGenerate(c.metrics, metrics.GenerateMetric{
		Model:    req.Model,
		Status:   reply.status,
		Retries:  retries,
		Duration: c.clock.Now().Sub(started),
	})

	doc := decodeDocument(reply.body)
	if reply.status < 200 || reply.status > 299 {
		return "", upstreamError(reply.status, doc)
	}
	if doc == nil {
		return "", apperrors.Callf("OpenAI returned an unreadable response (status %d)", reply.status)
	}
	return outputText(doc)
}

func (c *Client) buildRequest(req model.GenerateRequest) responsesRequest {
	out := responsesRequest{Model: req.Model, Input: req.Messages}
	if c.acceptsTemperature(req.Model) {
		t := req.Temperature
		out.Temperature = &t
	}
	return out
}

func (c *Client) acceptsTemperature(modelName string) bool {
	name := strings.ToLower(strings.TrimSpace(modelName))
	for _, prefix := range c.noTemp {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// send performs exactly one admitted request. Admission waits until minDelay has
// elapsed since the previous admission started, then holds the gate for the call.
func (c *Client) send(ctx context.Context, body []byte) (*upstreamReply, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	if !c.lastStart.IsZero() {
		if wait := c.minDelay - c.clock.Now().Sub(c.lastStart); wait > 0 {
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	c.lastStart = c.clock.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create responses request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read responses body: %w", err)
	}
	return &upstreamReply{status: resp.StatusCode, header: resp.Header, body: payload}, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoff returns max(Retry-After, min(2s*2^attempt, 15s) + jitter).
func (c *Client) backoff(attempt int, header http.Header) time.Duration {
	computed := baseBackoff << attempt
	if computed > maxBackoff || computed <= 0 {
		computed = maxBackoff
	}
	computed += c.jitter()

	if server := parseRetryAfter(header.Get("Retry-After"), c.clock.Now()); server > computed {
		return server
	}
	return computed
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func decodeDocument(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	return doc
}

func upstreamError(status int, doc any) error {
	msg := fmt.Sprintf("OpenAI error %d", status)
	if doc != nil {
		if v, err := jmespath.Search(errorMessageExpr, doc); err == nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				msg = s
			}
		}
	}
	if status == http.StatusTooManyRequests {
		if !strings.Contains(strings.ToLower(msg), "rate limit") {
			msg = "OpenAI rate limit: " + msg
		}
		return apperrors.RateLimit(msg)
	}
	return apperrors.Call(msg)
}

// outputText concatenates every output_text fragment in order.
func outputText(doc any) (string, error) {
	v, err := jmespath.Search(outputTextExpr, doc)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeCall, "parse OpenAI output")
	}
	parts, ok := v.([]any)
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range parts {
		if s, ok := p.(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}
