package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

const accoladeColumns = `id, role_id, name, emoji, description, channel_id, message_id, date_added, date_modified`

// CreateAccolade inserts an accolade definition and fills in its generated fields
func (db *DB) CreateAccolade(ctx context.Context, accolade *models.AccoladeDefinition) error {
	query := `
		INSERT INTO accolades (role_id, name, emoji, description, channel_id, message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, date_added, date_modified
	`

	err := db.QueryRowContext(
		ctx,
		query,
		accolade.RoleID,
		accolade.Name,
		accolade.Emoji,
		accolade.Description,
		accolade.ChannelID,
		accolade.MessageID,
	).Scan(&accolade.ID, &accolade.DateAdded, &accolade.DateModified)

	if err != nil {
		return fmt.Errorf("failed to create accolade: %w", err)
	}

	return nil
}

// ListAccolades returns every accolade definition ordered by id
func (db *DB) ListAccolades(ctx context.Context) ([]models.AccoladeDefinition, error) {
	query := `SELECT ` + accoladeColumns + ` FROM accolades ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accolades: %w", err)
	}
	defer rows.Close()

	var accolades []models.AccoladeDefinition
	for rows.Next() {
		a, err := scanAccolade(rows)
		if err != nil {
			return nil, err
		}
		accolades = append(accolades, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accolades: %w", err)
	}

	return accolades, nil
}

// GetAccolade retrieves one accolade definition by id
func (db *DB) GetAccolade(ctx context.Context, id int64) (*models.AccoladeDefinition, error) {
	query := `SELECT ` + accoladeColumns + ` FROM accolades WHERE id = $1`

	a, err := scanAccolade(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("accolade %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	return &a, nil
}

// ListAccoladeRecipients returns recipient rows for the given accolades,
// ordered by accolade then display name
func (db *DB) ListAccoladeRecipients(ctx context.Context, accoladeIDs []int64) ([]models.AccoladeRecipientRow, error) {
	if len(accoladeIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, accolade_id, user_id, COALESCE(username, ''), COALESCE(display_name, ''), synced_at
		FROM accolade_recipients
		WHERE accolade_id = ANY($1)
		ORDER BY accolade_id ASC, display_name ASC, user_id ASC
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(accoladeIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query accolade recipients: %w", err)
	}
	defer rows.Close()

	var recipients []models.AccoladeRecipientRow
	for rows.Next() {
		var r models.AccoladeRecipientRow
		if err := rows.Scan(&r.ID, &r.AccoladeID, &r.UserID, &r.Username, &r.DisplayName, &r.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan accolade recipient: %w", err)
		}
		recipients = append(recipients, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accolade recipients: %w", err)
	}

	return recipients, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccolade(row rowScanner) (models.AccoladeDefinition, error) {
	var a models.AccoladeDefinition
	err := row.Scan(
		&a.ID,
		&a.RoleID,
		&a.Name,
		&a.Emoji,
		&a.Description,
		&a.ChannelID,
		&a.MessageID,
		&a.DateAdded,
		&a.DateModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan accolade: %w", err)
	}
	return a, nil
}
