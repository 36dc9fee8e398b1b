package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

func toGuild(g *discordgo.Guild) *models.Guild {
	return &models.Guild{
		ID:          g.ID,
		Name:        g.Name,
		OwnerID:     g.OwnerID,
		MemberCount: g.MemberCount,
	}
}

func toRoles(roles []*discordgo.Role) []models.RoleRecord {
	out := make([]models.RoleRecord, 0, len(roles))
	for _, r := range roles {
		if r == nil {
			continue
		}
		out = append(out, toRole(r))
	}
	return out
}

func toRole(r *discordgo.Role) models.RoleRecord {
	return models.RoleRecord{
		ID:                   r.ID,
		Name:                 r.Name,
		ColorHex:             colorHex(r.Color),
		Position:             r.Position,
		GrantsElevatedAccess: grants(r.Permissions, ElevatedPermission),
	}
}

// toMembers normalizes members against the guild's roles. Members without
// a user object are dropped.
func toMembers(g *discordgo.Guild, members []*discordgo.Member) []models.MemberRecord {
	roles := make(map[string]*discordgo.Role, len(g.Roles))
	for _, r := range g.Roles {
		if r != nil {
			roles[r.ID] = r
		}
	}

	out := make([]models.MemberRecord, 0, len(members))
	for _, m := range members {
		if m == nil || m.User == nil {
			continue
		}
		perms := effectivePermissions(g, roles, m)
		out = append(out, models.MemberRecord{
			ID:                m.User.ID,
			Username:          m.User.Username,
			DisplayName:       displayName(m),
			RoleIDs:           append([]string(nil), m.Roles...),
			HasElevatedAccess: grants(perms, ElevatedPermission),
		})
	}
	return out
}

// effectivePermissions computes guild-level permissions: the owner has
// everything, otherwise @everyone and member roles are OR-ed together and
// administrator implies everything.
func effectivePermissions(g *discordgo.Guild, roles map[string]*discordgo.Role, m *discordgo.Member) int64 {
	if g.OwnerID != "" && m.User != nil && m.User.ID == g.OwnerID {
		return discordgo.PermissionAll
	}

	var perms int64
	if everyone, ok := roles[g.ID]; ok {
		perms |= everyone.Permissions
	}
	for _, id := range m.Roles {
		if r, ok := roles[id]; ok {
			perms |= r.Permissions
		}
	}

	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}

func grants(perms, bit int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&bit == bit
}

// displayName prefers the guild nickname, then the global name, then the username
func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func colorHex(color int) string {
	return fmt.Sprintf("#%06x", color&0xffffff)
}
