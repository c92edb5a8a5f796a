package verifier

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/selfheal/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available:", err)
	}
}

func TestVerify_Success(t *testing.T) {
	t.Parallel()
	requireShell(t)
	dir := t.TempDir()

	out, err := New(Options{}).Verify(context.Background(), dir, "echo ok; pwd; echo $CI")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$ echo ok; pwd; echo $CI\nok\n"))
	assert.Contains(t, out, dir)
	assert.True(t, strings.HasSuffix(out, "true\n"))
}

func TestVerify_NonZeroExitCarriesOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out, err := New(Options{}).Verify(context.Background(), t.TempDir(), "echo '2 failing' >&2; exit 1")
	require.Error(t, err)
	assert.True(t, apperrors.IsVerification(err))
	assert.Contains(t, err.Error(), "2 failing")
	assert.Contains(t, err.Error(), "exit 1")
	assert.Contains(t, out, "2 failing")
}

func TestVerify_OutputCapped(t *testing.T) {
	t.Parallel()
	requireShell(t)

	out, err := New(Options{}).Verify(context.Background(), t.TempDir(), "head -c 40000 /dev/zero | tr '\\0' 'a'")
	require.NoError(t, err)
	assert.Len(t, out, MaxOutputChars)
}

func TestVerify_Timeout(t *testing.T) {
	t.Parallel()
	requireShell(t)

	start := time.Now()
	_, err := New(Options{Timeout: 200 * time.Millisecond}).Verify(context.Background(), t.TempDir(), "sleep 10")
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestVerify_ParentCanceled(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Verify(ctx, t.TempDir(), "true")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCapChars(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ab", capChars("abc", 2))
	assert.Equal(t, "日本", capChars("日本語", 2))
	assert.Equal(t, "abc", capChars("abc", 5))
}
