package patch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/selfheal/internal/core"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/observability/metrics"
	"github.com/target/selfheal/internal/observability/statsd"
)

// FileName is the temporary patch artifact written into the working tree.
const FileName = ".selfheal.patch"

// previewLines is how much of the cleaned patch a failure diagnostic embeds.
const previewLines = 20

// Strategy is one `git apply` flag set.
type Strategy struct {
	Name string
	Args []string
}

// Strategies are tried in order; the first success wins.
var Strategies = []Strategy{
	{Name: "recount", Args: []string{"--whitespace=fix", "--recount"}},
	{Name: "ignore_whitespace", Args: []string{"--whitespace=fix", "--recount", "--ignore-whitespace"}},
	{Name: "unidiff_zero", Args: []string{"--whitespace=fix", "--recount", "--ignore-whitespace", "--unidiff-zero"}},
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Engine applies generated diffs with layered git apply strategies.
type Engine struct {
	logger  *slog.Logger
	metrics statsd.Sink
}

var _ core.PatchEngine = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "patch_engine"), metrics: opts.Metrics}
}

// Apply extracts, cleans and applies raw to tree. The patch file is removed on every path.
func (e *Engine) Apply(ctx context.Context, tree core.Tree, raw string) error {
	extracted, err := Extract(raw)
	if err != nil {
		return err
	}
	cleaned := Clean(extracted)

	path := filepath.Join(tree.Dir(), FileName)
	if err := os.WriteFile(path, []byte(cleaned), 0o600); err != nil {
		return fmt.Errorf("write patch file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.WarnContext(ctx, "remove patch file", "path", path, "error", rmErr)
		}
	}()

	var diagnostic string
	for _, s := range Strategies {
		args := append([]string{"apply"}, s.Args...)
		args = append(args, FileName)
		if _, err := tree.Git(ctx, args...); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			diagnostic = strings.TrimSpace(err.Error())
			e.logger.DebugContext(ctx, "git apply strategy failed", "strategy", s.Name, "error", diagnostic)
			continue
		}
		metrics.EmitPatchApply(e.metrics, s.Name, metrics.ResultSuccess)
		e.logger.InfoContext(ctx, "patch applied", "strategy", s.Name)
		return nil
	}

	metrics.EmitPatchApply(e.metrics, "all", metrics.ResultError)
	return apperrors.PatchApply(fmt.Sprintf(
		"patch did not apply: %s\n\nPatch preview (first %d lines):\n%s",
		diagnostic, previewLines, Preview(cleaned, previewLines),
	))
}

// DiffStat summarizes the working tree's pending changes.
func (e *Engine) DiffStat(ctx context.Context, tree core.Tree) (string, error) {
	out, err := tree.Git(ctx, "diff", "--stat")
	if err != nil {
		return "", fmt.Errorf("diff stat: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}
