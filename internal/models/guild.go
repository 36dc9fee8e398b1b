package models

// Guild is a resolved handle to the guild whose roster is mirrored
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	MemberCount int    `json:"member_count"`
}

// MemberRecord is a guild member as reported by the roster provider.
// Records are rebuilt on every fetch and never mutated locally.
type MemberRecord struct {
	ID                string   `json:"id"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	RoleIDs           []string `json:"role_ids"`
	HasElevatedAccess bool     `json:"has_elevated_access"`
}

// HasRole reports whether the member holds the given role
func (m *MemberRecord) HasRole(roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// RoleRecord describes a guild role. Higher Position means more senior.
type RoleRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	ColorHex             string `json:"color_hex"`
	Position             int    `json:"position"`
	GrantsElevatedAccess bool   `json:"grants_elevated_access"`
}

// RoleIndex maps role IDs to their metadata
type RoleIndex map[string]RoleRecord

// NewRoleIndex builds an index from a role list
func NewRoleIndex(roles []RoleRecord) RoleIndex {
	idx := make(RoleIndex, len(roles))
	for _, r := range roles {
		idx[r.ID] = r
	}
	return idx
}

// IDsByName returns the IDs of the roles whose names appear in names
func (idx RoleIndex) IDsByName(names []string) map[string]bool {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	ids := make(map[string]bool)
	for id, r := range idx {
		if wanted[r.Name] {
			ids[id] = true
		}
	}
	return ids
}
