package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "selfheal", sanitizePrefix(" .selfheal. "))
	assert.Empty(t, sanitizePrefix(" . "))
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                    "",
		"heal.job.transition": "heal.job.transition",
		" heal job/duration ": "heal_job_duration",
		"..heal..generate..":  "heal.generate",
		"a:b|c":               "a_b_c",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeMetricName(in), "input %q", in)
	}
}

func TestEncodeLine(t *testing.T) {
	t.Parallel()
	line := encodeLine("selfheal", "heal.job.transition", "1", "c",
		map[string]string{"env": "prod"},
		map[string]string{"result": "success", " ": "dropped", "env": "dev"},
	)
	assert.Equal(t, "selfheal.heal.job.transition:1|c|#env:dev,result:success", line)
	assert.Empty(t, encodeLine("selfheal", " ", "1", "c", nil, nil))
	assert.Equal(t, "x:2|g", encodeLine("", "x", "2", "g", nil, nil))
}

func TestClientWritesDatagrams(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	require.True(t, client.Enabled())

	client.Timing("heal.job.duration", 1500*time.Millisecond, map[string]string{"result": "error"})

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "selfheal.heal.job.duration:1500|ms|#env:test,result:error", string(buf[:n]))

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()
	var c *Client
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil)
	require.NoError(t, c.Close())
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()
	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	client.Count("dropped", 1, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	var r Recorder
	r.Count("heal.patch.apply", 1, map[string]string{"strategy": "recount"})
	r.Timing("heal.job.duration", 2*time.Second, nil)
	r.Count("heal.patch.apply", 1, map[string]string{"strategy": "rewrite"})

	applies := r.Named("heal.patch.apply")
	require.Len(t, applies, 2)
	assert.Equal(t, "rewrite", applies[1].Tags["strategy"])
	assert.InDelta(t, 2000, r.Named("heal.job.duration")[0].Value, 0.001)
	assert.Len(t, r.Metrics(), 3)
}
