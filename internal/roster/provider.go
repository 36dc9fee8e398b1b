// Package roster keeps the mirrored guild roster cheap to read: a per-guild
// freshness cache guarding the bulk member fetch, and a paginated fetcher
// that walks the provider's member listing to completion.
package roster

import (
	"context"
	"errors"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// ErrFetchTimeout tags a provider failure caused by the member fetch timing out.
// Timeouts degrade to cached data instead of failing the caller.
var ErrFetchTimeout = errors.New("guild member fetch timed out")

// ErrMissingGuildID is returned when a cache check is made without a guild id
var ErrMissingGuildID = errors.New("guild id is required")

// IsTimeout reports whether err is a classified fetch timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrFetchTimeout)
}

// BulkFetcher hydrates the provider's local member cache for a guild
type BulkFetcher interface {
	FetchAllMembers(ctx context.Context, guildID string) error
}

// PageSource lists members page by page and exposes the local member cache
type PageSource interface {
	FetchMembersPage(ctx context.Context, guildID string, limit int, afterID string) ([]models.MemberRecord, error)
	CachedMembers(guildID string) []models.MemberRecord
}

// Provider is everything the snapshot sync consumes from the roster provider
type Provider interface {
	BulkFetcher
	PageSource
	ResolveGuild(ctx context.Context, guildID string) (*models.Guild, error)
	FetchRoles(ctx context.Context, guildID string) ([]models.RoleRecord, error)
}
