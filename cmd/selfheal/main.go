package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	cfgPtr := &cfg

	logStartupInfo(ctx, logger, cfgPtr)

	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}

	stores, err := bootstrap.ConnectArchiveStores(ctx, cfgPtr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stores.Close(); closeErr != nil {
			logger.ErrorContext(ctx, "close archive stores failed", "error", closeErr)
		}
	}()

	if stores.DB != nil {
		if cfg.Postgres.RunMigrationsOnStart {
			if err = bootstrap.RunMigrations(ctx, stores.DB, logger); err != nil {
				return err
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      cfgPtr,
		DB:          stores.DB,
		RedisClient: stores.RedisClient(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfgPtr,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting selfheal service",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"archive", cfg.Archive.Backend,
		"github_api", cfg.GitHub.APIURL,
		"model", cfg.OpenAI.Model,
		"verify_cmd", cfg.Heal.VerifyCommand,
		"auth_enabled", cfg.Auth.Enabled(),
	)
}
