package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/selfheal/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	t.Parallel()
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.JobFailurePayload{
		JobID:      "123",
		Owner:      "acme",
		Repo:       "widgets",
		RunID:      42,
		Error:      "Verification failed (exit 1):\n2 failing",
		ErrorClass: "verification",
		Metadata:   map[string]string{"job_id": "ignored", "model": "gpt-4.1-mini"},
	})

	assert.Equal(t, "trigger", event["event_action"])
	assert.Equal(t, "selfheal:123", event["dedup_key"])

	section, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, section["severity"])
	assert.Equal(t, "selfheal", section["source"])
	assert.Equal(t, "heal-pipeline", section["component"])
	assert.Equal(t, "acme/widgets", section["group"])
	assert.Equal(t, "Heal job 123 for acme/widgets run 42 failed: Verification failed (exit 1):", section["summary"])

	custom, ok := section["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "123", custom["job_id"], "metadata never overrides canonical keys")
	assert.Equal(t, "gpt-4.1-mini", custom["model"])
	assert.Equal(t, int64(42), custom["run_id"])
}

func TestSummaryCapped(t *testing.T) {
	t.Parallel()
	s := summary(notify.JobFailurePayload{JobID: "x", Error: strings.Repeat("é", 2000)})
	assert.LessOrEqual(t, len(s), summaryLimit)
}

func TestSendJobFailure(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"}))
	assert.Equal(t, "rk", got["routing_key"])
}

func TestSendJobFailureError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"invalid event"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
}
