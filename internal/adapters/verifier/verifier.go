// Package verifier runs the project's verification command inside a job's checkout.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"

	"github.com/target/selfheal/internal/core"
	apperrors "github.com/target/selfheal/internal/errors"
)

const (
	// MaxOutputChars caps the captured transcript, command line included.
	MaxOutputChars = 16000

	waitDelay = 5 * time.Second
)

// Options configures a Shell verifier.
type Options struct {
	// Shell is the interpreter invoked as `<Shell> -c <command>`. Defaults to "sh".
	Shell string
	// Timeout kills the command when exceeded. Zero means no limit.
	Timeout time.Duration
	// Env is appended to the inherited environment.
	Env    []string
	Logger *slog.Logger
}

// Shell runs verification commands through a POSIX shell.
type Shell struct {
	shell   string
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

var _ core.Verifier = (*Shell)(nil)

// New creates a Shell verifier.
func New(opts Options) *Shell {
	sh := opts.Shell
	if sh == "" {
		sh = "sh"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		shell:   sh,
		timeout: opts.Timeout,
		env:     append([]string{"CI=true"}, opts.Env...),
		logger:  logger.With("component", "verifier"),
	}
}

// Verify runs command in dir and returns "$ <command>\n" followed by its combined
// output, capped at MaxOutputChars.
func (s *Shell) Verify(ctx context.Context, dir, command string) (string, error) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, s.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	transcript := capChars("$ "+command+"\n"+out.String(), MaxOutputChars)

	s.logger.DebugContext(ctx, "verify finished",
		"dir", dir,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", runErr,
	)

	if runErr == nil {
		return transcript, nil
	}
	if ctx.Err() != nil {
		return transcript, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return transcript, &apperrors.AppError{
			Code:    apperrors.ErrCodeTimeout,
			Message: fmt.Sprintf("verify timed out after %s\n%s", s.timeout, transcript),
		}
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return transcript, apperrors.Verification(
			fmt.Sprintf("Verification failed (exit %d):\n%s", exitErr.ExitCode(), transcript))
	}
	return transcript, apperrors.Wrap(runErr, apperrors.ErrCodeVerification, "Verification could not run")
}

func capChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
