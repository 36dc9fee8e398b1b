package testutil

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// GenerateAccolade creates an accolade definition bound to roleID
func GenerateAccolade(roleID, name string) *models.AccoladeDefinition {
	return &models.AccoladeDefinition{
		RoleID:      roleID,
		Name:        name,
		Emoji:       sql.NullString{String: ":medal:", Valid: true},
		Description: sql.NullString{String: fmt.Sprintf("Awarded to %s", name), Valid: true},
	}
}

// GenerateDiscordMember creates a raw discordgo member as Discord would return it
func GenerateDiscordMember(id, nick string, roleIDs ...string) *discordgo.Member {
	return &discordgo.Member{
		User: &discordgo.User{
			ID:       id,
			Username: fmt.Sprintf("user_%s", id),
		},
		Nick:     nick,
		Roles:    roleIDs,
		JoinedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// GenerateDiscordRole creates a raw discordgo role
func GenerateDiscordRole(id, name string, position int, permissions int64) *discordgo.Role {
	return &discordgo.Role{
		ID:          id,
		Name:        name,
		Color:       0x3498db,
		Position:    position,
		Permissions: permissions,
	}
}
