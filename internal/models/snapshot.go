package models

import "database/sql"

// Table names a derived table owned by the snapshot synchronizer
type Table string

const (
	TableAccoladeRecipients Table = "accolade_recipients"
	TableOfficerProfiles    Table = "officer_profiles"
)

// AccoladeDefinition mirrors the `accolades` table. It is owned by admins
// and read-only to the snapshot sync.
type AccoladeDefinition struct {
	ID           int64          `json:"id"`
	RoleID       string         `json:"role_id"`
	Name         string         `json:"name"`
	Emoji        sql.NullString `json:"emoji"`
	Description  sql.NullString `json:"description"`
	ChannelID    sql.NullString `json:"channel_id"`
	MessageID    sql.NullString `json:"message_id"`
	DateAdded    int64          `json:"date_added"`
	DateModified int64          `json:"date_modified"`
}

// AccoladeRecipientRow is one member holding an accolade's role at sync time
type AccoladeRecipientRow struct {
	ID          int64  `json:"id"`
	AccoladeID  int64  `json:"accolade_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	SyncedAt    int64  `json:"synced_at"`
}

// OfficerProfileRow is one elevated-access member at sync time.
// RoleName and RoleColor are null when no role grants the access.
type OfficerProfileRow struct {
	UserID      string         `json:"user_id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	RoleName    sql.NullString `json:"role_name"`
	RoleColor   sql.NullString `json:"role_color"`
	SyncedAt    int64          `json:"synced_at"`
}

// OfficerBio is free-form officer text maintained outside the sync
type OfficerBio struct {
	DiscordUserID string `json:"discord_user_id"`
	Bio           string `json:"bio"`
}

// SyncReason classifies the outcome of a snapshot sync
type SyncReason string

const (
	SyncReasonNone              SyncReason = "none"
	SyncReasonMissingGuildID    SyncReason = "missingGuildId"
	SyncReasonGuildUnavailable  SyncReason = "guildUnavailable"
	SyncReasonRoleFetchFailed   SyncReason = "roleFetchFailed"
	SyncReasonMemberFetchFailed SyncReason = "memberFetchFailed"
)

// SyncResult is the structured outcome of one snapshot sync cycle
type SyncResult struct {
	Success          bool       `json:"success"`
	Reason           SyncReason `json:"reason"`
	AccoladeRowCount int        `json:"accolade_row_count"`
	OfficerRowCount  int        `json:"officer_row_count"`
}

// FailedSync builds an unsuccessful result with the given reason
func FailedSync(reason SyncReason) SyncResult {
	return SyncResult{Success: false, Reason: reason}
}
