package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// DeleteAll removes every row from a derived snapshot table
func (db *DB) DeleteAll(ctx context.Context, table models.Table) error {
	switch table {
	case models.TableAccoladeRecipients, models.TableOfficerProfiles:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", pq.QuoteIdentifier(string(table))))
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	if n, err := result.RowsAffected(); err == nil {
		db.logger.Debug("cleared snapshot table",
			zap.String("table", string(table)),
			zap.Int64("rows", n),
		)
	}

	return nil
}

// BulkInsertAccoladeRecipients copies recipient rows in a single transaction
func (db *DB) BulkInsertAccoladeRecipients(ctx context.Context, rows []models.AccoladeRecipientRow) error {
	if len(rows) == 0 {
		return nil
	}

	return db.copyIn(ctx, models.TableAccoladeRecipients,
		[]string{"accolade_id", "user_id", "username", "display_name", "synced_at"},
		len(rows),
		func(i int) []any {
			r := rows[i]
			return []any{r.AccoladeID, r.UserID, nullIfEmpty(r.Username), nullIfEmpty(r.DisplayName), r.SyncedAt}
		},
	)
}

// BulkInsertOfficerProfiles copies officer rows in a single transaction
func (db *DB) BulkInsertOfficerProfiles(ctx context.Context, rows []models.OfficerProfileRow) error {
	if len(rows) == 0 {
		return nil
	}

	return db.copyIn(ctx, models.TableOfficerProfiles,
		[]string{"user_id", "username", "display_name", "role_name", "role_color", "synced_at"},
		len(rows),
		func(i int) []any {
			r := rows[i]
			return []any{r.UserID, nullIfEmpty(r.Username), nullIfEmpty(r.DisplayName), r.RoleName, r.RoleColor, r.SyncedAt}
		},
	)
}

// copyIn streams n rows into table with COPY FROM STDIN
func (db *DB) copyIn(ctx context.Context, table models.Table, columns []string, n int, row func(i int) []any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(string(table), columns...))
	if err != nil {
		return fmt.Errorf("failed to prepare copy into %s: %w", table, err)
	}

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy row %d into %s: %w", i, table, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush copy into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy into %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit copy into %s: %w", table, err)
	}

	db.logger.Debug("bulk inserted snapshot rows",
		zap.String("table", string(table)),
		zap.Int("rows", n),
	)
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
