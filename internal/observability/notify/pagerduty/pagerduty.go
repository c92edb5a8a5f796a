// Package pagerduty triggers PagerDuty incidents for failed heal jobs.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/selfheal/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// summaryLimit is the Events API cap on payload.summary.
const summaryLimit = 1024

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     fallbackString(cfg.Source, "selfheal"),
		component:  fallbackString(cfg.Component, "heal-pipeline"),
		endpoint:   fallbackString(cfg.Endpoint, APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendJobFailure submits a trigger event to PagerDuty.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.submit(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) buildEvent(p notify.JobFailurePayload) map[string]any {
	severity := fallbackString(strings.ToLower(p.Severity), notify.SeverityCritical)

	occurredAt := p.OccurredAt.UTC()
	if p.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"job_id":      p.JobID,
		"repository":  p.Repository(),
		"step":        p.Step,
		"retries":     p.Retries,
		"error":       p.Error,
		"error_class": p.ErrorClass,
	}
	if p.RunID > 0 {
		custom["run_id"] = p.RunID
	}
	for k, v := range p.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    "selfheal:" + fallbackString(p.JobID, "unknown"),
		"payload": map[string]any{
			"summary":        summary(p),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"group":          p.Repository(),
			"class":          p.ErrorClass,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func summary(p notify.JobFailurePayload) string {
	var sb strings.Builder
	sb.WriteString("Heal job ")
	sb.WriteString(fallbackString(p.JobID, "unknown"))
	if repo := p.Repository(); repo != "" {
		sb.WriteString(" for ")
		sb.WriteString(repo)
	}
	if p.RunID > 0 {
		sb.WriteString(" run ")
		sb.WriteString(strconv.FormatInt(p.RunID, 10))
	}
	sb.WriteString(" failed")
	if first, _, _ := strings.Cut(strings.TrimSpace(p.Error), "\n"); first != "" {
		sb.WriteString(": ")
		sb.WriteString(first)
	}
	s := sb.String()
	if len(s) > summaryLimit {
		s = s[:summaryLimit]
	}
	return strings.ToValidUTF8(s, "")
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read pagerduty error response: %w", readErr)
		}
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain pagerduty response body: %w", err)
	}
	return nil
}
