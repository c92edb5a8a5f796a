package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/adapters/gitcli"
	"github.com/target/selfheal/internal/adapters/github"
	"github.com/target/selfheal/internal/adapters/oidc"
	"github.com/target/selfheal/internal/adapters/openai"
	"github.com/target/selfheal/internal/adapters/verifier"
	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/data"
	"github.com/target/selfheal/internal/domain/model"
	apperrors "github.com/target/selfheal/internal/errors"
	httpx "github.com/target/selfheal/internal/http"
	"github.com/target/selfheal/internal/observability/notify/pagerduty"
	"github.com/target/selfheal/internal/observability/notify/slack"
	"github.com/target/selfheal/internal/observability/statsd"
	"github.com/target/selfheal/internal/service"
	"github.com/target/selfheal/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Store         *data.JobStore
	SourceControl core.SourceControl
	Archive       core.JobArchive
	Pruner        core.ArchivePruner
	TokenVerifier core.TokenVerifier
	Defaults      httpx.HealDefaults
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink as an interface, nil when metrics are off.
//
//nolint:ireturn // callers only need the Sink port.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: required by the postgres archive
	RedisClient redis.UniversalClient // Optional: required by the redis archive
	Logger      *slog.Logger
	// HTTPClient overrides the base transport for upstream APIs.
	HTTPClient *http.Client
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     obsLogger,
			GlobalTags: cfg.Metrics.GlobalTags,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			RepoURLPrefix: cfg.Slack.RepoURLPrefix,
			JobURLPrefix:  cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:           baseLogger.With("component", "failure_notifier"),
		Sinks:            sinks,
		SkipErrorClasses: cfg.SkipErrorClasses,
	})
}

// buildArchive selects the terminal-job archive. The pruner is nil unless the
// backend supports age-based deletion.
//
//nolint:ireturn // the archive backend is chosen at runtime.
func buildArchive(
	cfg config.ArchiveConfig,
	db *sql.DB,
	rdb redis.UniversalClient,
) (core.JobArchive, core.ArchivePruner, error) {
	switch {
	case cfg.UsesRedis():
		if rdb == nil {
			return nil, nil, errors.New("redis archive requires a redis client")
		}
		return data.NewRedisJobArchive(rdb, cfg.RedisTTL), nil, nil
	case cfg.UsesPostgres():
		if db == nil {
			return nil, nil, errors.New("postgres archive requires a database")
		}
		archive := data.NewPostgresJobArchive(db)
		return archive, archive, nil
	default:
		return nil, nil, nil
	}
}

// unconfiguredGenerator stands in when no generation API key is configured.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(context.Context, model.GenerateRequest) (string, error) {
	return "", apperrors.ValidationField("apiKey", "Missing OpenAI key")
}

//nolint:ireturn // callers only need the port.
func buildGenerator(cfg config.OpenAIConfig, hc *http.Client, logger *slog.Logger, sink statsd.Sink) (core.Generator, error) {
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; heal jobs will be rejected")
		return unconfiguredGenerator{}, nil
	}
	client, err := openai.NewClient(openai.Options{
		BaseURL:             cfg.BaseURL,
		APIKey:              cfg.APIKey,
		MinDelay:            cfg.MinDelay,
		MaxRetries:          cfg.MaxRetries,
		NoTemperatureModels: cfg.NoTemperatureModels,
		HTTPClient:          hc,
		Logger:              logger,
		Metrics:             sink,
	})
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}
	return client, nil
}

//nolint:ireturn // nil means authentication is disabled.
func buildTokenVerifier(ctx context.Context, cfg config.AuthConfig, hc *http.Client) (core.TokenVerifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		Issuer:            cfg.Issuer,
		Audience:          cfg.Audience,
		SkipAudienceCheck: cfg.SkipAudienceCheck,
		HTTPClient:        hc,
	})
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}
	return v, nil
}

// healDefaults derives the request fallbacks from configuration.
func healDefaults(cfg *config.AppConfig) httpx.HealDefaults {
	return httpx.HealDefaults{
		Owner:            cfg.GitHub.Owner,
		Repo:             cfg.GitHub.Repo,
		Base:             cfg.GitHub.Base,
		Token:            cfg.GitHub.Token,
		Model:            cfg.OpenAI.Model,
		Temperature:      cfg.OpenAI.Temperature,
		VerifyCommand:    cfg.Heal.VerifyCommand,
		APIKeyConfigured: cfg.OpenAI.APIKey != "",
	}
}

// NewServices wires the job store, heal pipeline and job service from configuration.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, cfg.Observability)
	sink := observability.Sink()

	archive, pruner, err := buildArchive(cfg.Archive, deps.DB, deps.RedisClient)
	if err != nil {
		return ServiceContainer{}, err
	}

	scm := github.NewClient(github.Options{
		BaseURL:     cfg.GitHub.APIURL,
		HTTPClient:  deps.HTTPClient,
		MaxLogBytes: cfg.GitHub.MaxLogBytes,
		Logger:      logger,
	})

	gen, err := buildGenerator(cfg.OpenAI, deps.HTTPClient, logger, sink)
	if err != nil {
		return ServiceContainer{}, err
	}

	tokenVerifier, err := buildTokenVerifier(ctx, cfg.Auth, deps.HTTPClient)
	if err != nil {
		return ServiceContainer{}, err
	}

	store := data.NewJobStore(data.JobStoreOptions{})
	pipeline, err := service.NewHealPipeline(service.HealPipelineOptions{
		SourceControl: scm,
		Generator:     gen,
		Cloner: gitcli.NewCloner(gitcli.Options{
			Host:         cfg.GitHub.CloneHost,
			TempRoot:     cfg.Heal.WorkDir,
			CloneTimeout: cfg.Heal.CloneTimeout,
			AuthorName:   cfg.Heal.AuthorName,
			AuthorEmail:  cfg.Heal.AuthorEmail,
			Logger:       logger,
		}),
		Verifier:     verifier.New(verifier.Options{Timeout: cfg.Heal.VerifyTimeout, Logger: logger}),
		Progress:     store,
		LogTailChars: cfg.Heal.LogTailChars,
		Logger:       logger,
		Metrics:      sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create heal pipeline: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:            store,
		Runner:           pipeline,
		Archive:          archive,
		FailureNotifier:  observability.FailureNotifier,
		RateLimitRetries: cfg.Heal.RateRetries,
		RateLimitDelay:   cfg.Heal.RateRetryDelay,
		ArchiveTimeout:   cfg.Archive.Timeout,
		Logger:           logger,
		Metrics:          sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	logger.InfoContext(ctx, "services initialised",
		"archive", cfg.Archive.Backend,
		"auth", tokenVerifier != nil,
		"metrics", observability.MetricsSink.Enabled(),
		"verify_cmd", cfg.Heal.VerifyCommand,
	)

	return ServiceContainer{
		Jobs:          jobs,
		Store:         store,
		SourceControl: scm,
		Archive:       archive,
		Pruner:        pruner,
		TokenVerifier: tokenVerifier,
		Defaults:      healDefaults(cfg),
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			services := deps.cfg.Services
			if services.Store == nil {
				return errors.New("reaper requires a job store")
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperConfig{
				Store:   services.Store,
				Pruner:  services.Pruner,
				Logger:  deps.logger,
				Config:  reaperCfg,
				Metrics: services.Observability.Sink(),
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		jobService:      cfg.Services.Jobs,
		jobDrainTimeout: cfg.Config.Heal.ShutdownTimeout,
		metrics:         cfg.Services.Observability.MetricsSink,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	jobService      *service.JobService
	jobDrainTimeout time.Duration
	metrics         *statsd.Client
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops intake first, then drains heal jobs, then waits for background services.
func gracefulStop(cfg shutdownConfig) error {
	// cfg.ctx is already canceled here; shutdown deadlines hang off a detached context.
	base := context.WithoutCancel(cfg.ctx)
	var errs []error

	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(base, shutdownWaitTimeout)
		err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}

	if cfg.jobService != nil {
		timeout := cfg.jobDrainTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		drainCtx, cancel := context.WithTimeout(base, timeout)
		err := cfg.jobService.Shutdown(drainCtx)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if err := cfg.metrics.Close(); err != nil {
		cfg.logger.Warn("close statsd client", "error", err)
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
