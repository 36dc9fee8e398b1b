package database

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/config"
)

// setupTestDB starts a migrated PostgreSQL container for database package
// tests. testutil has its own copy to avoid an import cycle.
func setupTestDB(ctx context.Context) (*DB, func(), error) {
	pgContainer, cfg, err := setupPostgresContainer(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", zap.Error(err))
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			logger.Error("failed to terminate container", zap.Error(err))
		}
	}

	return db, cleanup, nil
}

// setupPostgresContainer starts an empty PostgreSQL container
func setupPostgresContainer(ctx context.Context) (testcontainers.Container, *config.DatabaseConfig, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, nil, err
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}

	cfg := &config.DatabaseConfig{
		Host:         host,
		Port:         mappedPort.Port(),
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	return pgContainer, cfg, nil
}
