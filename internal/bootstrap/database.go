package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/selfheal/config"
	"github.com/target/selfheal/internal/migrate"
)

const (
	// archiveApplicationName tags archive sessions in pg_stat_activity.
	archiveApplicationName = "selfheal-archive"
	// archiveClientName tags archive connections in CLIENT LIST.
	archiveClientName = "selfheal-archive"
)

const connectPingTimeout = 5 * time.Second

// ArchiveStores holds the connections the configured job archive backend needs.
// At most one of DB and Redis is set.
type ArchiveStores struct {
	DB    *sql.DB
	Redis *redis.Client
}

// ConnectArchiveStores connects Postgres or Redis depending on the archive backend.
// Nothing is connected when the archive is disabled.
func ConnectArchiveStores(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*ArchiveStores, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	stores := &ArchiveStores{}

	switch {
	case cfg.Archive.UsesPostgres():
		db, err := ConnectDB(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		stores.DB = db
	case cfg.Archive.UsesRedis():
		client, err := ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		stores.Redis = client
	default:
		if logger != nil {
			logger.InfoContext(ctx, "job archive disabled; finished jobs live in memory until reaped")
		}
	}
	return stores, nil
}

// RedisClient returns the Redis connection as the interface the archive takes,
// or nil when none is connected.
//
//nolint:ireturn // avoids a typed nil reaching the archive builder.
func (s *ArchiveStores) RedisClient() redis.UniversalClient {
	if s == nil || s.Redis == nil {
		return nil
	}
	return s.Redis
}

// Close closes whatever ConnectArchiveStores opened.
func (s *ArchiveStores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// postgresDSN renders cfg as a pgx URL. A positive StatementTimeout is sent as a
// startup parameter so every archive statement is bounded server-side.
func postgresDSN(cfg config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := u.Query()
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", archiveApplicationName)
	if cfg.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens and pings the Postgres job archive database.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Archive traffic is one upsert per finished job plus status lookups.
	maxOpen := max(cfg.MaxOpenConns, 1)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(maxOpen, 2))
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "archive database connected",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
			"statement_timeout", cfg.StatementTimeout,
		)
	}
	return db, nil
}

// redisOptions accepts either a redis:// or rediss:// URL or a bare host:port.
// REDIS_PASSWORD and REDIS_DB apply only where the URL leaves them unset.
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("redis archive requires REDIS_URI")
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("invalid REDIS_DB %d", cfg.DB)
	}

	var opts *redis.Options
	if isRedisURL(uri) {
		parsed, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		if _, _, err := net.SplitHostPort(uri); err != nil {
			return nil, fmt.Errorf("invalid redis address %q: %w", uri, err)
		}
		opts = &redis.Options{Addr: uri}
	}

	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	opts.ClientName = archiveClientName
	return opts, nil
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// ConnectRedis opens and pings the Redis job archive.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "archive redis connected", "addr", opts.Addr, "db", opts.DB)
	}
	return client, nil
}

// RunMigrations applies the archive schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}

	return nil
}
