package storage

import (
	"context"
	"testing"
	"time"

	"github.com/wallet-watch/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testPostgresConfig points at the docker-compose dev database
func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "wallet_watch_test",
		User:           "watcher",
		Password:       "watcher_dev_password",
		MaxConnections: 5,
		MigrationsPath: "../../migrations/postgres",
	}
}
