package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/bootstrap"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/data"
	"github.com/target/selfheal/internal/domain/model"
	"github.com/target/selfheal/internal/service"
	"github.com/target/selfheal/internal/util"
)

const defaultPollInterval = 500 * time.Millisecond

var errArchiveDisabled = errors.New("job archive disabled (ARCHIVE_BACKEND=none)")

type showJobOptions struct {
	JobID  string
	Output outputFormat
}

func parseShowJobFlags(args []string) (showJobOptions, error) {
	fs := flag.NewFlagSet("job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts   showJobOptions
		output string
	)
	fs.StringVar(&opts.JobID, "id", "", "Job id (required)")
	fs.StringVar(&output, "o", string(outputJSON), "Output format: json or yaml")

	if err := fs.Parse(args); err != nil {
		return showJobOptions{}, err
	}
	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return showJobOptions{}, errors.New("--id is required")
	}
	format, err := parseOutputFormat(output)
	if err != nil {
		return showJobOptions{}, err
	}
	opts.Output = format
	return opts, nil
}

//nolint:ireturn // the archive backend is chosen by configuration.
func openArchive(cfg config.ArchiveConfig, stores *bootstrap.ArchiveStores) (core.JobArchive, error) {
	switch {
	case cfg.UsesPostgres():
		return data.NewPostgresJobArchive(stores.DB), nil
	case cfg.UsesRedis():
		return data.NewRedisJobArchive(stores.Redis, cfg.RedisTTL), nil
	default:
		return nil, errArchiveDisabled
	}
}

func runShowJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowJobFlags(args)
	if err != nil {
		return err
	}
	if !cmdCtx.Config.Archive.UsesPostgres() && !cmdCtx.Config.Archive.UsesRedis() {
		return errArchiveDisabled
	}

	stores, err := bootstrap.ConnectArchiveStores(cmdCtx.Ctx, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stores.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close archive connections failed", "error", cerr)
		}
	}()

	archive, err := openArchive(cmdCtx.Config.Archive, stores)
	if err != nil {
		return err
	}
	job, err := archive.Get(cmdCtx.Ctx, opts.JobID)
	if err != nil {
		return fmt.Errorf("get job %s: %w", opts.JobID, err)
	}
	return printJob(cmdCtx.Out, job, opts.Output)
}

type healOptions struct {
	Repo          repoFlags
	RunID         int64
	Base          string
	Model         string
	Temperature   float64
	VerifyCommand string
	Poll          time.Duration
}

func parseHealFlags(args []string, cfg *config.AppConfig) (healOptions, error) {
	fs := flag.NewFlagSet("heal", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts healOptions
	opts.Repo.register(fs, cfg.GitHub)
	fs.Int64Var(&opts.RunID, "run-id", 0, "Failed workflow run id (required)")
	fs.StringVar(&opts.Base, "base", cfg.GitHub.Base, "Base branch for the fix pull request")
	fs.StringVar(&opts.Model, "model", cfg.OpenAI.Model, "Generation model")
	fs.Float64Var(&opts.Temperature, "temperature", cfg.OpenAI.Temperature, "Sampling temperature (0-1)")
	fs.StringVar(&opts.VerifyCommand, "verify-cmd", cfg.Heal.VerifyCommand, "Command run in the checkout after patching")
	fs.DurationVar(&opts.Poll, "poll", defaultPollInterval, "How often to print new progress lines")

	if err := fs.Parse(args); err != nil {
		return healOptions{}, err
	}
	if opts.RunID <= 0 {
		return healOptions{}, errors.New("--run-id is required")
	}
	if opts.Poll <= 0 {
		return healOptions{}, errors.New("--poll must be greater than zero")
	}
	opts.Temperature = config.ClampTemperature(opts.Temperature)
	return opts, nil
}

func (o healOptions) request(ref model.RepoRef) model.HealRequest {
	return model.HealRequest{
		Owner:         ref.Owner,
		Repo:          ref.Repo,
		Base:          strings.TrimSpace(o.Base),
		Token:         ref.Token,
		RunID:         o.RunID,
		Model:         strings.TrimSpace(o.Model),
		Temperature:   o.Temperature,
		VerifyCommand: strings.TrimSpace(o.VerifyCommand),
	}
}

func runHeal(cmdCtx *commandContext, args []string) error {
	opts, err := parseHealFlags(args, &cmdCtx.Config)
	if err != nil {
		return err
	}
	ref, err := opts.Repo.ref()
	if err != nil {
		return err
	}
	if cmdCtx.Config.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}

	stores, err := bootstrap.ConnectArchiveStores(cmdCtx.Ctx, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stores.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close archive connections failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(cmdCtx.Ctx, &bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          stores.DB,
		RedisClient: stores.RedisClient(),
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}

	job, err := services.Jobs.Submit(cmdCtx.Ctx, opts.request(ref))
	if err != nil {
		return fmt.Errorf("submit heal job: %w", err)
	}
	if err := writef(cmdCtx.Out, "job %s started for %s/%s run %d\n", job.ID, ref.Owner, ref.Repo, opts.RunID); err != nil {
		return err
	}

	final, waitErr := followJob(cmdCtx.Ctx, followJobRequest{
		Jobs:     services.Jobs,
		JobID:    job.ID,
		Interval: opts.Poll,
		Out:      cmdCtx.Out,
	})

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(cmdCtx.Ctx), cmdCtx.Config.Heal.ShutdownTimeout)
	defer cancel()
	if err := services.Jobs.Shutdown(drainCtx); err != nil {
		cmdCtx.Logger.Warn("job service shutdown incomplete", "error", err)
	}
	if waitErr != nil {
		return waitErr
	}
	return reportOutcome(cmdCtx.Out, final)
}

// jobReader is the part of JobService followJob polls.
type jobReader interface {
	Get(ctx context.Context, id string) (*model.Job, error)
}

var _ jobReader = (*service.JobService)(nil)

type followJobRequest struct {
	Jobs     jobReader
	JobID    string
	Interval time.Duration
	Out      io.Writer
}

// followJob prints new log lines until the job reaches a terminal status or ctx ends.
func followJob(ctx context.Context, req followJobRequest) (*model.Job, error) {
	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()

	printed := 0
	for {
		job, err := req.Jobs.Get(context.WithoutCancel(ctx), req.JobID)
		if err != nil {
			return nil, fmt.Errorf("get job %s: %w", req.JobID, err)
		}
		if len(job.Logs) < printed {
			printed = 0
		}
		for _, line := range job.Logs[printed:] {
			if err := writeln(req.Out, line); err != nil {
				return nil, err
			}
		}
		printed = len(job.Logs)

		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, fmt.Errorf("interrupted while job %s was %s: %w", job.ID, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func reportOutcome(w io.Writer, job *model.Job) error {
	elapsed := util.FormatElapsed(util.JobElapsed(job.CreatedAt, job.FinishedAt))
	if job.Status == model.JobStatusDone {
		if job.DiffStat != "" {
			if err := writef(w, "\n%s\n", job.DiffStat); err != nil {
				return err
			}
		}
		return writef(w, "pull request: %s (took %s)\n", job.PRURL, elapsed)
	}
	return fmt.Errorf("heal job %s failed after %s: %s", job.ID, elapsed, job.Error)
}
