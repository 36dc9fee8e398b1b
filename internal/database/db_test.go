package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/config"
)

func TestNewDB_Success(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)

	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	// Verify connection is active
	err = db.PingContext(ctx)
	assert.NoError(t, err)

	// Verify connection pool settings
	stats := db.Stats()
	assert.Equal(t, 5, stats.MaxOpenConnections)
}

func TestNewDB_InvalidCredentials(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	// Use wrong password
	cfg.Password = "wrong_password"

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)

	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestNewDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:         "nonexistent-host-12345",
		Port:         "5432",
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)

	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}

func TestDBHealth_Healthy(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)
	require.NoError(t, err)
	defer db.Close()

	// Health check should pass
	err = db.Health(ctx)
	assert.NoError(t, err)
}

func TestDBHealth_ClosedConnection(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)
	require.NoError(t, err)

	// Close the connection
	err = db.Close()
	require.NoError(t, err)

	// Health check should fail on closed connection
	err = db.Health(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database health check failed")
}

func TestDBClose(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)
	require.NoError(t, err)

	// Verify connection is active before close
	err = db.PingContext(ctx)
	assert.NoError(t, err)

	// Close the connection
	err = db.Close()
	assert.NoError(t, err)

	// Verify connection is closed - ping should fail
	err = db.PingContext(ctx)
	assert.Error(t, err)
}

func TestRunMigrations_Success(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	db, err := NewDB(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RunMigrations())

	var tableCount int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name IN ('accolades', 'accolade_recipients', 'officer_profiles', 'officer_bios')
	`).Scan(&tableCount)

	require.NoError(t, err)
	assert.Equal(t, 4, tableCount, "all snapshot tables should be created")

	var migrationTableExists bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'schema_migrations'
		)
	`).Scan(&migrationTableExists)

	require.NoError(t, err)
	assert.True(t, migrationTableExists, "migration tracking table should exist")
}

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	db, err := NewDB(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RunMigrations())
	assert.NoError(t, db.RunMigrations(), "running migrations twice should not error")

	var version int
	err = db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestDatabaseConnectionPool(t *testing.T) {
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	// Set specific connection pool values
	cfg.MaxOpenConns = 10
	cfg.MaxIdleConns = 5

	logger := zap.NewNop()

	db, err := NewDB(cfg, logger)
	require.NoError(t, err)
	defer db.Close()

	// Verify connection pool settings
	stats := db.Stats()
	assert.Equal(t, 10, stats.MaxOpenConnections)

	// Open some connections by querying
	for i := 0; i < 3; i++ {
		var result int
		err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
		require.NoError(t, err)
		assert.Equal(t, 1, result)
	}

	// Verify connections were opened
	stats = db.Stats()
	assert.True(t, stats.OpenConnections > 0, "Should have open connections")
	assert.True(t, stats.InUse >= 0, "InUse should be >= 0")
}
