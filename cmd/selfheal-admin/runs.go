package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/adapters/github"
	"github.com/target/selfheal/internal/domain/heal"
	"github.com/target/selfheal/internal/domain/model"
)

// defaultRunLogTail matches the tail the HTTP API returns for a run.
const defaultRunLogTail = 24000

type repoFlags struct {
	Owner string
	Repo  string
	Token string
}

func (r *repoFlags) register(fs *flag.FlagSet, defaults config.GitHubConfig) {
	fs.StringVar(&r.Owner, "owner", defaults.Owner, "Repository owner (defaults to GITHUB_OWNER)")
	fs.StringVar(&r.Repo, "repo", defaults.Repo, "Repository name (defaults to GITHUB_REPO)")
	fs.StringVar(&r.Token, "token", defaults.Token, "GitHub token (defaults to GITHUB_TOKEN)")
}

func (r *repoFlags) ref() (model.RepoRef, error) {
	ref := model.RepoRef{
		Owner: strings.TrimSpace(r.Owner),
		Repo:  strings.TrimSpace(r.Repo),
		Token: strings.TrimSpace(r.Token),
	}
	if ref.Owner == "" || ref.Repo == "" {
		return model.RepoRef{}, errors.New("--owner and --repo are required")
	}
	if ref.Token == "" {
		return model.RepoRef{}, errors.New("--token is required")
	}
	return ref, nil
}

type listRunsOptions struct {
	Repo  repoFlags
	Limit int
}

func parseListRunsFlags(args []string, cfg config.GitHubConfig) (listRunsOptions, error) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listRunsOptions
	opts.Repo.register(fs, cfg)
	fs.IntVar(&opts.Limit, "limit", github.DefaultRunsPageSize, "Number of runs to list (1-100)")

	if err := fs.Parse(args); err != nil {
		return listRunsOptions{}, err
	}
	if opts.Limit < 1 || opts.Limit > 100 {
		return listRunsOptions{}, errors.New("--limit must be between 1 and 100")
	}
	return opts, nil
}

func newSourceControl(cmdCtx *commandContext) *github.Client {
	return github.NewClient(github.Options{
		BaseURL:     cmdCtx.Config.GitHub.APIURL,
		MaxLogBytes: cmdCtx.Config.GitHub.MaxLogBytes,
		Logger:      cmdCtx.Logger,
	})
}

func runListRuns(cmdCtx *commandContext, args []string) error {
	opts, err := parseListRunsFlags(args, cmdCtx.Config.GitHub)
	if err != nil {
		return err
	}
	ref, err := opts.Repo.ref()
	if err != nil {
		return err
	}

	runs, err := newSourceControl(cmdCtx).ListRuns(cmdCtx.Ctx, ref, opts.Limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	return printRuns(cmdCtx.Out, runs)
}

type runLogOptions struct {
	Repo  repoFlags
	RunID int64
	Tail  int
}

func parseRunLogFlags(args []string, cfg config.GitHubConfig) (runLogOptions, error) {
	fs := flag.NewFlagSet("run-log", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts runLogOptions
	opts.Repo.register(fs, cfg)
	fs.Int64Var(&opts.RunID, "id", 0, "Workflow run id (required)")
	fs.IntVar(&opts.Tail, "tail", defaultRunLogTail, "Characters of the log tail to print; 0 prints everything")

	if err := fs.Parse(args); err != nil {
		return runLogOptions{}, err
	}
	if opts.RunID <= 0 {
		return runLogOptions{}, errors.New("--id is required")
	}
	if opts.Tail < 0 {
		return runLogOptions{}, errors.New("--tail must not be negative")
	}
	return opts, nil
}

func runRunLog(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunLogFlags(args, cmdCtx.Config.GitHub)
	if err != nil {
		return err
	}
	ref, err := opts.Repo.ref()
	if err != nil {
		return err
	}

	text, err := newSourceControl(cmdCtx).RunLog(cmdCtx.Ctx, ref, opts.RunID)
	if err != nil {
		return fmt.Errorf("fetch run log: %w", err)
	}
	if opts.Tail > 0 {
		text = heal.Tail(text, opts.Tail)
	}
	if err := writef(cmdCtx.Out, "%s", text); err != nil {
		return err
	}
	if !strings.HasSuffix(text, "\n") {
		return writeln(cmdCtx.Out)
	}
	return nil
}
