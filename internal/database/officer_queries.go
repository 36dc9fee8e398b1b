package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// ListOfficerProfiles returns the current officer snapshot ordered by
// synced_at descending then display name
func (db *DB) ListOfficerProfiles(ctx context.Context) ([]models.OfficerProfileRow, error) {
	query := `
		SELECT user_id, COALESCE(username, ''), COALESCE(display_name, ''), role_name, role_color, synced_at
		FROM officer_profiles
		ORDER BY synced_at DESC, display_name ASC, user_id ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query officer profiles: %w", err)
	}
	defer rows.Close()

	var officers []models.OfficerProfileRow
	for rows.Next() {
		var o models.OfficerProfileRow
		if err := rows.Scan(&o.UserID, &o.Username, &o.DisplayName, &o.RoleName, &o.RoleColor, &o.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan officer profile: %w", err)
		}
		officers = append(officers, o)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating officer profiles: %w", err)
	}

	return officers, nil
}

// ListOfficerBios returns bios keyed by discord user id
func (db *DB) ListOfficerBios(ctx context.Context, userIDs []string) (map[string]string, error) {
	bios := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return bios, nil
	}

	rows, err := db.QueryContext(ctx,
		`SELECT discord_user_id, bio FROM officer_bios WHERE discord_user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query officer bios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.OfficerBio
		if err := rows.Scan(&b.DiscordUserID, &b.Bio); err != nil {
			return nil, fmt.Errorf("failed to scan officer bio: %w", err)
		}
		bios[b.DiscordUserID] = b.Bio
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating officer bios: %w", err)
	}

	return bios, nil
}

// UpsertOfficerBio creates or replaces an officer's bio
func (db *DB) UpsertOfficerBio(ctx context.Context, bio *models.OfficerBio) error {
	query := `
		INSERT INTO officer_bios (discord_user_id, bio)
		VALUES ($1, $2)
		ON CONFLICT (discord_user_id)
		DO UPDATE SET bio = EXCLUDED.bio
	`

	if _, err := db.ExecContext(ctx, query, bio.DiscordUserID, bio.Bio); err != nil {
		return fmt.Errorf("failed to upsert officer bio: %w", err)
	}

	return nil
}
