// Package testutil holds shared fixtures for integration-style tests: a migrated
// Postgres database, a scratch Redis DB and throwaway git repositories.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/selfheal/internal/migrate"
)

// TestDBConfig holds configuration for test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from the docker-compose test profile).
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "selfheal"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "selfheal"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "selfheal"),
	}
}

// DSN renders the config as a pgx connection string.
func (c TestDBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName)
}

// SetupTestDB opens the test database, applies migrations and empties heal_jobs.
// The connection is closed on test cleanup.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in -short mode")
	}

	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN())
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		skipOrFail(t, requireDB(), "Test database not available: %v", pingErr)
	}

	if err := migrate.Run(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM heal_jobs"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to clean up heal_jobs: %v", err)
	}

	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("test db close failed: %v", cerr)
		}
	})
	return db
}

// SetupTestRedis returns a client on a flushed scratch DB, skipping when Redis is unreachable.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in -short mode")
	}

	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	dbIndex, err := strconv.Atoi(getEnvOrDefault("TEST_REDIS_DB", "15"))
	if err != nil {
		t.Fatalf("invalid TEST_REDIS_DB: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		skipOrFail(t, requireRedis(), "Redis not available for testing at %s: %v", addr, err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
	})
	return client
}

func skipOrFail(t testing.TB, required bool, format string, args ...any) {
	t.Helper()
	if required {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// TestTime returns a fixed reference time for deterministic tests.
func TestTime() time.Time {
	return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
}
