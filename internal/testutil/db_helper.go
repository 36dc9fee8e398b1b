package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/config"
	"github.com/parsascontentcorner/guildsnapshot/internal/database"
	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// SetupTestDB creates a PostgreSQL TestContainer, runs migrations, and returns a database connection.
// Returns the DB connection, a cleanup function, and any error encountered.
//
// Usage:
//
//	db, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*database.DB, func(), error) {
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
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	logger := zap.NewNop()

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

	db, err := database.NewDB(cfg, logger)
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

// SeedAccolades inserts one accolade per role id and returns them with ids assigned
func SeedAccolades(ctx context.Context, db *database.DB, roles map[string]string) ([]*models.AccoladeDefinition, error) {
	out := make([]*models.AccoladeDefinition, 0, len(roles))
	for roleID, name := range roles {
		accolade := GenerateAccolade(roleID, name)
		if err := db.CreateAccolade(ctx, accolade); err != nil {
			return nil, fmt.Errorf("failed to seed accolade %q: %w", name, err)
		}
		out = append(out, accolade)
	}
	return out, nil
}
