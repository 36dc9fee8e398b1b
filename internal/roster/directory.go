package roster

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// RoleSource resolves a guild's role metadata
type RoleSource interface {
	FetchRoles(ctx context.Context, guildID string) ([]models.RoleRecord, error)
}

// Directory answers "who is in the guild" from the local member cache,
// using the roster cache to keep that cache reasonably fresh.
type Directory struct {
	cache  *Cache
	source PageSource
	roles  RoleSource
	logger *zap.Logger
}

// NewDirectory creates a member directory
func NewDirectory(cache *Cache, source PageSource, roles RoleSource, logger *zap.Logger) *Directory {
	return &Directory{
		cache:  cache,
		source: source,
		roles:  roles,
		logger: logger,
	}
}

// Members returns the cached roster, ordered by id. When roleNames is
// non-empty only members holding at least one role with one of those names
// are returned. A degraded freshness still returns cached members.
func (d *Directory) Members(ctx context.Context, guildID string, roleNames []string) ([]models.MemberRecord, models.Freshness, error) {
	freshness, err := d.cache.EnsureFresh(ctx, guildID, 0, 0)
	if err != nil {
		return nil, freshness, err
	}

	cached := d.source.CachedMembers(guildID)
	members := make([]models.MemberRecord, 0, len(cached))
	if len(roleNames) == 0 {
		members = append(members, cached...)
		SortMembers(members)
		return members, freshness, nil
	}

	roles, err := d.roles.FetchRoles(ctx, guildID)
	if err != nil {
		return nil, freshness, fmt.Errorf("failed to fetch roles: %w", err)
	}
	targets := models.NewRoleIndex(roles).IDsByName(roleNames)
	if len(targets) == 0 {
		d.logger.Debug("no roles matched requested names",
			zap.String("guild_id", guildID),
			zap.Strings("role_names", roleNames),
		)
		return members, freshness, nil
	}

	for _, m := range cached {
		for _, id := range m.RoleIDs {
			if targets[id] {
				members = append(members, m)
				break
			}
		}
	}
	SortMembers(members)
	return members, freshness, nil
}

// CacheState exposes the roster cache bookkeeping for a guild
func (d *Directory) CacheState(guildID string) (models.RosterCacheState, bool) {
	return d.cache.State(guildID)
}
