package snapshot

import (
	"database/sql"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// DeriveAccoladeRecipients builds one row per (accolade, member holding the
// accolade's role). Accolades keep their input order and members keep roster
// order within each accolade.
func DeriveAccoladeRecipients(accolades []models.AccoladeDefinition, members []models.MemberRecord, syncedAt int64) []models.AccoladeRecipientRow {
	var rows []models.AccoladeRecipientRow
	for _, accolade := range accolades {
		if accolade.RoleID == "" {
			continue
		}
		for i := range members {
			m := &members[i]
			if !m.HasRole(accolade.RoleID) {
				continue
			}
			rows = append(rows, models.AccoladeRecipientRow{
				AccoladeID:  accolade.ID,
				UserID:      m.ID,
				Username:    m.Username,
				DisplayName: m.DisplayName,
				SyncedAt:    syncedAt,
			})
		}
	}
	return rows
}

// DeriveOfficers builds one row per member with elevated access. The row
// carries the highest-positioned role that grants the access, if any.
func DeriveOfficers(members []models.MemberRecord, roles []models.RoleRecord, syncedAt int64) []models.OfficerProfileRow {
	index := models.NewRoleIndex(roles)

	var rows []models.OfficerProfileRow
	for i := range members {
		m := &members[i]
		if !m.HasElevatedAccess {
			continue
		}

		row := models.OfficerProfileRow{
			UserID:      m.ID,
			Username:    m.Username,
			DisplayName: m.DisplayName,
			SyncedAt:    syncedAt,
		}
		if role, ok := officerRole(m, index); ok {
			row.RoleName = sql.NullString{String: role.Name, Valid: true}
			row.RoleColor = sql.NullString{String: role.ColorHex, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// officerRole picks the member's highest elevated role. Equal positions keep
// the role listed first on the member.
func officerRole(m *models.MemberRecord, index models.RoleIndex) (models.RoleRecord, bool) {
	var (
		best  models.RoleRecord
		found bool
	)
	for _, id := range m.RoleIDs {
		role, ok := index[id]
		if !ok || !role.GrantsElevatedAccess {
			continue
		}
		if !found || role.Position > best.Position {
			best = role
			found = true
		}
	}
	return best, found
}
