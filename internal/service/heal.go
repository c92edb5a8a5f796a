package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/bundle"
	"github.com/target/selfheal/internal/domain/heal"
	"github.com/target/selfheal/internal/domain/model"
	"github.com/target/selfheal/internal/domain/patch"
	apperrors "github.com/target/selfheal/internal/errors"
	"github.com/target/selfheal/internal/observability/metrics"
	"github.com/target/selfheal/internal/observability/statsd"
)

// DefaultLogTailChars is how much of a run log the pipeline keeps for the bundle.
const DefaultLogTailChars = 80000

// Step labels published before the heal engine takes over.
const (
	StepFetchingRun  = "fetching run"
	StepFetchingLogs = "fetching logs"
	StepHealing      = "healing"
)

// HealPipelineOptions groups dependencies for HealPipeline.
type HealPipelineOptions struct {
	SourceControl core.SourceControl // Required: run metadata, logs and pull requests
	Generator     core.Generator     // Required: text generation client
	Cloner        core.Cloner        // Required: isolated checkouts
	Verifier      core.Verifier      // Required: runs the verify command
	Progress      core.JobProgress   // Required: where step and log updates go
	Bundles       core.BundleBuilder // Optional: defaults to bundle.NewBuilder
	Patches       core.PatchEngine   // Optional: defaults to patch.NewEngine
	LogTailChars  int                // Optional: defaults to DefaultLogTailChars
	Logger        *slog.Logger       // Optional: structured logger
	Metrics       statsd.Sink        // Optional: metrics sink
}

// HealPipeline runs one heal attempt from run metadata to an opened pull request.
// It holds no per-job state, so one instance serves every job concurrently.
type HealPipeline struct {
	scm      core.SourceControl
	gen      core.Generator
	cloner   core.Cloner
	verifier core.Verifier
	progress core.JobProgress
	bundles  core.BundleBuilder
	patches  core.PatchEngine
	logTail  int
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewHealPipeline constructs a HealPipeline.
func NewHealPipeline(opts HealPipelineOptions) (*HealPipeline, error) {
	switch {
	case opts.SourceControl == nil:
		return nil, errors.New("SourceControl is required")
	case opts.Generator == nil:
		return nil, errors.New("Generator is required")
	case opts.Cloner == nil:
		return nil, errors.New("Cloner is required")
	case opts.Verifier == nil:
		return nil, errors.New("Verifier is required")
	case opts.Progress == nil:
		return nil, errors.New("Progress is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bundles := opts.Bundles
	if bundles == nil {
		bundles = bundle.NewBuilder(bundle.Options{Logger: logger})
	}
	patches := opts.Patches
	if patches == nil {
		patches = patch.NewEngine(patch.EngineOptions{Logger: logger, Metrics: opts.Metrics})
	}
	logTail := opts.LogTailChars
	if logTail <= 0 {
		logTail = DefaultLogTailChars
	}

	return &HealPipeline{
		scm:      opts.SourceControl,
		gen:      opts.Generator,
		cloner:   opts.Cloner,
		verifier: opts.Verifier,
		progress: opts.Progress,
		bundles:  bundles,
		patches:  patches,
		logTail:  logTail,
		logger:   logger.With("component", "heal_pipeline"),
		metrics:  opts.Metrics,
	}, nil
}

// MustNewHealPipeline constructs a HealPipeline and panics on error.
func MustNewHealPipeline(opts HealPipelineOptions) *HealPipeline {
	p, err := NewHealPipeline(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create HealPipeline: %v", err))
	}
	return p
}

// attempt is the per-run working state threaded through the heal steps.
type attempt struct {
	jobID  string
	req    model.HealRequest
	ref    model.RepoRef
	ws     core.Workspace
	bundle *model.Bundle
	plan   string
	branch string
}

func (a *attempt) retry(errText, snippet string) heal.RetryInput {
	return heal.RetryInput{
		Bundle:    a.bundle.Text,
		PlanJSON:  a.plan,
		Allowed:   a.bundle.Files,
		ErrorText: errText,
		Snippet:   snippet,
	}
}

// Run executes every step for jobID and returns the payloads to publish on success.
// Progress is written through the configured JobProgress; the terminal status is left
// to the caller.
func (p *HealPipeline) Run(ctx context.Context, jobID string, req model.HealRequest) (*model.HealResult, error) {
	ref := model.RepoRef{Owner: req.Owner, Repo: req.Repo, Token: req.Token}
	log := p.logger.With("job_id", jobID, "run_id", req.RunID, "repo", req.Owner+"/"+req.Repo)

	p.publish(jobID, StepFetchingRun, "Fetching run metadata")
	run, err := p.scm.GetRun(ctx, ref, req.RunID)
	if err != nil {
		return nil, err
	}

	p.publish(jobID, StepFetchingLogs, "Downloading run logs")
	logText, err := p.scm.RunLog(ctx, ref, req.RunID)
	if err != nil {
		return nil, err
	}
	logText = heal.Tail(logText, p.logTail)

	p.publish(jobID, StepHealing, "Starting heal engine")
	log.InfoContext(ctx, "heal engine starting", "head_sha", run.HeadSHA, "log_chars", len(logText))

	return p.heal(ctx, log, &attempt{jobID: jobID, req: req, ref: ref}, run.HeadSHA, logText)
}

func (p *HealPipeline) heal(
	ctx context.Context,
	log *slog.Logger,
	a *attempt,
	headSHA, logText string,
) (*model.HealResult, error) {
	p.onLog(a.jobID, "Creating sandbox checkout")
	ws, err := p.cloner.Clone(ctx, model.CloneRequest{RepoRef: a.ref, SHA: headSHA})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.WarnContext(ctx, "failed to remove checkout", "dir", ws.Dir(), "error", cerr)
		}
	}()
	a.ws = ws

	p.onLog(a.jobID, "Building context bundle")
	a.bundle, err = p.bundles.Build(ctx, ws, logText)
	if err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Planning fix")
	planRaw, err := p.generate(ctx, a.req, heal.PlannerPrompt(a.bundle.Text))
	if err != nil {
		return nil, err
	}
	plan, planJSON, err := heal.ParsePlan(planRaw)
	if err != nil {
		return nil, err
	}
	a.plan = planJSON
	log.InfoContext(ctx, "plan parsed",
		"summary", plan.Summary,
		"fix_steps", len(plan.FixPlan),
		"bundle_files", len(a.bundle.Files),
	)

	p.onLog(a.jobID, "Generating patch (unified diff)")
	patchRaw, err := p.generate(ctx, a.req, heal.PatcherPrompt(a.bundle.Text, a.plan, a.bundle.Files))
	if err != nil {
		return nil, err
	}
	if !patch.LikelyUnifiedDiff(patchRaw) {
		p.onLog(a.jobID, "Patch invalid; retrying with stricter format")
		patchRaw, err = p.generateDiff(ctx, a, heal.InvalidDiffFormat, heal.SnippetNone)
		if err != nil {
			return nil, err
		}
	}

	a.branch = heal.BranchName(a.req.RunID, headSHA)
	p.onLog(a.jobID, "Creating branch "+a.branch)
	if err := ws.CreateBranch(ctx, a.branch); err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Applying patch")
	preview, err := p.applyWithEscalation(ctx, log, a, patchRaw)
	if err != nil {
		return nil, err
	}

	return p.finish(ctx, log, a, preview)
}

// applyWithEscalation applies patchRaw, retrying once with a corrective diff and then
// falling back to a full-file rewrite. It returns the text used as the patch preview.
func (p *HealPipeline) applyWithEscalation(
	ctx context.Context,
	log *slog.Logger,
	a *attempt,
	patchRaw string,
) (string, error) {
	err := p.patches.Apply(ctx, a.ws, patchRaw)
	if err == nil {
		return patchRaw, nil
	}
	if !escalates(err) {
		return "", err
	}

	msg := err.Error()
	p.onLog(a.jobID, "Patch apply failed; retrying with tighter constraints")
	log.InfoContext(ctx, "patch apply failed", "attempt", 1, "error", msg)
	patchRaw, err = p.generateDiff(ctx, a, msg, heal.ExtractSnippet(a.ws.Dir(), msg))
	if err != nil {
		return "", err
	}
	err = p.patches.Apply(ctx, a.ws, patchRaw)
	if err == nil {
		return patchRaw, nil
	}
	if !escalates(err) {
		return "", err
	}

	retryMsg := err.Error()
	p.onLog(a.jobID, "Patch apply failed again; attempting full-file rewrite")
	log.InfoContext(ctx, "patch apply failed", "attempt", 2, "error", retryMsg)
	if err := p.rewrite(ctx, a, a.retry(retryMsg, heal.ExtractSnippet(a.ws.Dir(), retryMsg))); err != nil {
		metrics.EmitPatchApply(p.metrics, "rewrite", metrics.ResultError)
		return "", err
	}
	metrics.EmitPatchApply(p.metrics, "rewrite", metrics.ResultSuccess)

	diff, err := a.ws.Git(ctx, "diff")
	if err != nil {
		log.WarnContext(ctx, "failed to render rewrite diff", "error", err)
		return patchRaw, nil
	}
	return diff, nil
}

// rewrite runs the full-file rewrite prompt and, when it yields no files, the strict one.
func (p *HealPipeline) rewrite(ctx context.Context, a *attempt, in heal.RetryInput) error {
	raw, err := p.generate(ctx, a.req, heal.FileRewritePrompt(in))
	if err != nil {
		return err
	}
	payload, err := heal.ParseRewrite(raw)
	if err != nil {
		return err
	}
	if len(payload.Files) == 0 {
		raw, err = p.generate(ctx, a.req, heal.FileRewriteStrictPrompt(in))
		if err != nil {
			return err
		}
		payload, err = heal.ParseRewrite(raw)
		if err != nil || len(payload.Files) == 0 {
			return apperrors.RewriteEmpty(heal.MsgRewriteEmpty)
		}
	}
	return heal.ApplyRewrites(a.ws.Dir(), payload.Files, a.bundle.Files)
}

func (p *HealPipeline) finish(
	ctx context.Context,
	log *slog.Logger,
	a *attempt,
	preview string,
) (*model.HealResult, error) {
	p.onLog(a.jobID, "Verifying: "+a.req.VerifyCommand)
	verifyLog, err := p.verifier.Verify(ctx, a.ws.Dir(), a.req.VerifyCommand)
	if err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Committing changes")
	stat, err := p.patches.DiffStat(ctx, a.ws)
	if err != nil {
		return nil, err
	}
	title := heal.CommitMessage(a.req.RunID)
	if err := a.ws.CommitAll(ctx, title); err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Pushing branch")
	if err := a.ws.Push(ctx, a.branch); err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Writing PR body")
	body, err := p.generate(ctx, a.req, heal.PRBodyPrompt(a.bundle.Text, a.plan, stat, verifyLog))
	if err != nil {
		return nil, err
	}

	p.onLog(a.jobID, "Opening PR")
	pr, err := p.scm.CreatePullRequest(ctx, a.ref, model.PullRequestInput{
		Title: title,
		Head:  a.branch,
		Base:  a.req.Base,
		Body:  body,
	})
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "pull request opened", "url", pr.HTMLURL, "branch", a.branch)

	return &model.HealResult{
		PRURL:        pr.HTMLURL,
		DiffStat:     stat,
		VerifyLog:    heal.Clip(verifyLog, heal.VerifyLogLimit),
		PatchPreview: heal.Clip(preview, heal.PreviewLimit),
		PRBody:       heal.Clip(body, heal.PreviewLimit),
		Bundle:       heal.Clip(a.bundle.Text, heal.PreviewLimit),
		BundleFiles:  a.bundle.Files,
	}, nil
}

// generateDiff asks for a corrected diff and rejects output that still is not one.
func (p *HealPipeline) generateDiff(ctx context.Context, a *attempt, errText, snippet string) (string, error) {
	raw, err := p.generate(ctx, a.req, heal.PatcherRetryPrompt(a.retry(errText, snippet)))
	if err != nil {
		return "", err
	}
	if !patch.LikelyUnifiedDiff(raw) {
		return "", apperrors.PatchFormat(heal.MsgPatchInvalid)
	}
	return raw, nil
}

func (p *HealPipeline) generate(ctx context.Context, req model.HealRequest, messages []model.Message) (string, error) {
	return p.gen.Generate(ctx, model.GenerateRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    messages,
	})
}

// onLog records a heal engine line as both a log entry and the current step.
func (p *HealPipeline) onLog(jobID, line string) {
	p.publish(jobID, line, line)
}

func (p *HealPipeline) publish(jobID, step, line string) {
	p.progress.Patch(jobID, model.StepPatch(step))
	p.progress.AppendLog(jobID, line)
}

// escalates reports whether an apply failure is one the corrective prompts can address.
func escalates(err error) bool {
	return apperrors.IsPatchApply(err) || apperrors.IsPatchFormat(err)
}

// IsRateLimited reports whether a pipeline failure should reschedule the whole job.
// Any error whose message mentions a rate limit qualifies.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.IsRateLimit(err) || strings.Contains(strings.ToLower(err.Error()), "rate limit")
}
