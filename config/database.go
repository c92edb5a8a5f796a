package config

import (
	"fmt"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL settings for the job archive.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"selfheal"`
	Password string `env:"PASSWORD" envDefault:"selfheal"`
	Name     string `env:"NAME"     envDefault:"selfheal"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// MaxOpenConns caps the archive connection pool.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"5"`
	// StatementTimeout bounds every archive statement server-side; 0 disables it.
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"30s"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize applies guardrails to database configuration values.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 1
	}
	if c.StatementTimeout < 0 {
		c.StatementTimeout = 0
	}
}

// RedisConfig contains Redis settings for the job archive.
// URI is either a redis:// URL or a bare host:port.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// ArchiveBackend selects where finished job snapshots are kept.
type ArchiveBackend string

const (
	// ArchiveBackendNone keeps finished jobs only in memory until the reaper evicts them.
	ArchiveBackendNone ArchiveBackend = "none"
	// ArchiveBackendRedis stores snapshots as expiring JSON keys.
	ArchiveBackendRedis ArchiveBackend = "redis"
	// ArchiveBackendPostgres stores snapshots in the heal_jobs table.
	ArchiveBackendPostgres ArchiveBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for ArchiveBackend.
func (b *ArchiveBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch ArchiveBackend(v) {
	case "", ArchiveBackendNone:
		*b = ArchiveBackendNone
		return nil
	case ArchiveBackendRedis, ArchiveBackendPostgres:
		*b = ArchiveBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid ArchiveBackend: %q (valid options: none, redis, postgres)", v)
	}
}

// ArchiveConfig controls the durable job archive.
type ArchiveConfig struct {
	Backend ArchiveBackend `env:"ARCHIVE_BACKEND" envDefault:"none"`

	// RedisTTL is how long a snapshot lives in Redis.
	RedisTTL time.Duration `env:"ARCHIVE_REDIS_TTL" envDefault:"168h"`

	// Timeout bounds a single archive write.
	Timeout time.Duration `env:"ARCHIVE_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to archive configuration values.
func (a *ArchiveConfig) Sanitize() {
	if a.Backend == "" {
		a.Backend = ArchiveBackendNone
	}
	if a.RedisTTL < time.Minute {
		a.RedisTTL = time.Minute
	}
	if a.Timeout <= 0 {
		a.Timeout = 10 * time.Second
	}
}

// UsesRedis reports whether the archive needs a Redis connection.
func (a *ArchiveConfig) UsesRedis() bool { return a.Backend == ArchiveBackendRedis }

// UsesPostgres reports whether the archive needs a Postgres connection.
func (a *ArchiveConfig) UsesPostgres() bool { return a.Backend == ArchiveBackendPostgres }
