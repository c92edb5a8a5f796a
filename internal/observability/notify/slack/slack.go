// Package slack posts heal job failures to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/target/selfheal/internal/observability/notify"
)

// maxErrorChars keeps long verify transcripts from blowing the message size limit.
const maxErrorChars = 1500

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// RepoURLPrefix is the web root repositories live under, e.g. https://github.com.
	RepoURLPrefix string
	// JobURLPrefix, when set, links the job id to a status page.
	JobURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL    string
	channel       string
	username      string
	retryLimit    int
	repoURLPrefix string
	jobURLPrefix  string
	client        *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		webhookURL:    webhookURL,
		channel:       strings.TrimSpace(cfg.Channel),
		username:      fallbackString(strings.TrimSpace(cfg.Username), "selfheal"),
		retryLimit:    max(cfg.RetryLimit, 0),
		repoURLPrefix: strings.TrimSpace(cfg.RepoURLPrefix),
		jobURLPrefix:  strings.TrimSpace(cfg.JobURLPrefix),
		client:        hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		// Linear backoff.
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

func (c *Client) formatMessage(p notify.JobFailurePayload) map[string]any {
	timestamp := p.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Heal job failed*")
	if p.JobID != "" {
		text.WriteByte(' ')
		text.WriteString(c.formatJob(p.JobID))
	}
	text.WriteByte('\n')

	fields := []struct{ label, value string }{
		{"Severity", fallbackString(p.Severity, notify.SeverityCritical)},
		{"Repository", c.formatRepo(p.Repository())},
		{"Run", c.formatRun(p.Repository(), p.RunID)},
		{"Step", escapeSlackText(p.Step)},
		{"Restarts", retriesValue(p.Retries)},
		{"Error class", p.ErrorClass},
		{"Error", formatError(p.Error)},
	}
	for _, f := range fields {
		appendSlackField(&text, f.label, f.value)
	}
	appendSlackMetadata(&text, p.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) formatJob(id string) string {
	if link := joinURL(c.jobURLPrefix, id); link != "" {
		return fmt.Sprintf("<%s|%s>", link, escapeSlackText(id))
	}
	return "`" + escapeSlackText(id) + "`"
}

func (c *Client) formatRepo(repo string) string {
	if repo == "" {
		return ""
	}
	if link := joinURL(c.repoURLPrefix, repo); link != "" {
		return fmt.Sprintf("<%s|%s>", link, escapeSlackText(repo))
	}
	return escapeSlackText(repo)
}

func (c *Client) formatRun(repo string, runID int64) string {
	if runID <= 0 {
		return ""
	}
	id := strconv.FormatInt(runID, 10)
	if repo != "" {
		if link := joinURL(c.repoURLPrefix, repo, "actions", "runs", id); link != "" {
			return fmt.Sprintf("<%s|%s>", link, id)
		}
	}
	return id
}

func retriesValue(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func formatError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}
	if utf8.RuneCountInString(msg) > maxErrorChars {
		msg = string([]rune(msg)[:maxErrorChars]) + "…"
	}
	if strings.Contains(msg, "\n") {
		return "\n```" + escapeSlackText(msg) + "```"
	}
	return escapeSlackText(msg)
}

// joinURL appends path elements to prefix, returning "" unless prefix is an absolute URL.
func joinURL(prefix string, elems ...string) string {
	if prefix == "" {
		return ""
	}
	u, err := url.Parse(prefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	var parts []string
	for _, e := range elems {
		parts = append(parts, strings.Split(e, "/")...)
	}
	link, err := url.JoinPath(u.String(), parts...)
	if err != nil {
		return ""
	}
	return link
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(escapeSlackText(metadata[k]))
		text.WriteByte('\n')
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read slack error response: %w", readErr)
		}
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}
