// Package discord adapts a discordgo session to the roster provider contract.
// Provider collections are normalized here into plain ordered slices of
// models records so nothing downstream inspects discordgo types.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
)

// ElevatedPermission is the permission bit that makes a member an officer
const ElevatedPermission int64 = discordgo.PermissionKickMembers

const (
	defaultFetchTimeout = 2 * time.Minute
	maxPageSize         = 1000
)

// sessionAPI is the subset of *discordgo.Session the provider calls
type sessionAPI interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// Pacer throttles member page requests per guild and is told when Discord
// asks us to back off
type Pacer interface {
	Wait(ctx context.Context, key string) error
	Pause(key string, d time.Duration)
}

// Provider implements roster.Provider on top of discordgo
type Provider struct {
	api          sessionAPI
	state        *discordgo.State
	logger       *zap.Logger
	fetchTimeout time.Duration
	pacer        Pacer
}

var _ roster.Provider = (*Provider)(nil)

// NewProvider wraps an open discordgo session
func NewProvider(session *discordgo.Session, fetchTimeout time.Duration, logger *zap.Logger) *Provider {
	return newProvider(session, session.State, fetchTimeout, logger)
}

func newProvider(api sessionAPI, state *discordgo.State, fetchTimeout time.Duration, logger *zap.Logger) *Provider {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	if state == nil {
		state = discordgo.NewState()
	}
	return &Provider{
		api:          api,
		state:        state,
		logger:       logger,
		fetchTimeout: fetchTimeout,
	}
}

// SetPacer registers the pacer awaited by the bulk member walk and
// notified about 429 responses
func (p *Provider) SetPacer(pacer Pacer) {
	p.pacer = pacer
}

// ResolveGuild returns the guild from the session state, falling back to a REST lookup
func (p *Provider) ResolveGuild(ctx context.Context, guildID string) (*models.Guild, error) {
	if g, err := p.state.Guild(guildID); err == nil {
		p.state.RLock()
		defer p.state.RUnlock()
		return toGuild(g), nil
	}

	g, err := p.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild %s: %w", guildID, classify(err))
	}
	if err := p.state.GuildAdd(g); err != nil {
		p.logger.Debug("failed to cache guild in state", zap.String("guild_id", guildID), zap.Error(err))
	}

	p.logger.Debug("fetched guild from Discord",
		zap.String("guild_id", g.ID),
		zap.String("name", g.Name),
	)
	return toGuild(g), nil
}

// FetchRoles hydrates the role cache for a guild and returns its roles
func (p *Provider) FetchRoles(ctx context.Context, guildID string) ([]models.RoleRecord, error) {
	roles, err := p.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles for guild %s: %w", guildID, classify(err))
	}

	if _, err := p.state.Guild(guildID); err == nil {
		for _, r := range roles {
			if err := p.state.RoleAdd(guildID, r); err != nil {
				p.logger.Debug("failed to cache role in state", zap.String("role_id", r.ID), zap.Error(err))
			}
		}
	}

	p.logger.Debug("fetched guild roles from Discord",
		zap.String("guild_id", guildID),
		zap.Int("role_count", len(roles)),
	)
	return toRoles(roles), nil
}

// FetchMembersPage lists up to limit members with ids greater than afterID
func (p *Provider) FetchMembersPage(ctx context.Context, guildID string, limit int, afterID string) ([]models.MemberRecord, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	members, err := p.api.GuildMembers(guildID, afterID, limit, discordgo.WithContext(ctx))
	if err != nil {
		p.maybePause(guildID, err)
		return nil, classify(err)
	}
	// Normalize before the members are shared with the state, which
	// gateway events update in place.
	out := p.normalize(guildID, members)
	p.remember(guildID, members)
	return out, nil
}

// FetchAllMembers walks every member page into the session state, bounded
// by the provider's fetch timeout. Running out of time yields ErrFetchTimeout.
func (p *Provider) FetchAllMembers(ctx context.Context, guildID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	if _, err := p.ResolveGuild(ctx, guildID); err != nil {
		return err
	}

	after := ""
	total := 0
	for {
		if p.pacer != nil {
			if err := p.pacer.Wait(ctx, guildID); err != nil {
				return fmt.Errorf("member page pacing aborted: %w", classify(err))
			}
		}

		members, err := p.api.GuildMembers(guildID, after, maxPageSize, discordgo.WithContext(ctx))
		if err != nil {
			p.maybePause(guildID, err)
			return fmt.Errorf("failed to fetch members after %q: %w", after, classify(err))
		}

		next := after
		for _, m := range members {
			if m != nil && m.User != nil && roster.CompareIDs(m.User.ID, next) > 0 {
				next = m.User.ID
			}
		}
		p.remember(guildID, members)
		total += len(members)

		if len(members) < maxPageSize || next == after {
			break
		}
		after = next
	}

	p.logger.Debug("hydrated guild members",
		zap.String("guild_id", guildID),
		zap.Int("member_count", total),
	)
	return nil
}

// CachedMembers returns the members currently held in the session state
func (p *Provider) CachedMembers(guildID string) []models.MemberRecord {
	g, err := p.state.Guild(guildID)
	if err != nil {
		return nil
	}

	p.state.RLock()
	defer p.state.RUnlock()
	return toMembers(g, g.Members)
}

// normalize converts members against the guild's state entry. Without the
// guild in state effective permissions cannot account for @everyone or
// ownership; member roles alone still apply.
func (p *Provider) normalize(guildID string, members []*discordgo.Member) []models.MemberRecord {
	g, err := p.state.Guild(guildID)
	if err != nil {
		return toMembers(&discordgo.Guild{ID: guildID}, members)
	}
	p.state.RLock()
	defer p.state.RUnlock()
	return toMembers(g, members)
}

// remember stores fetched members in the session state
func (p *Provider) remember(guildID string, members []*discordgo.Member) {
	if _, err := p.state.Guild(guildID); err != nil {
		return
	}
	for _, m := range members {
		if m == nil || m.User == nil {
			continue
		}
		m.GuildID = guildID
		if err := p.state.MemberAdd(m); err != nil {
			p.logger.Debug("failed to cache member in state", zap.String("user_id", m.User.ID), zap.Error(err))
		}
	}
}

func (p *Provider) maybePause(guildID string, err error) {
	if p.pacer == nil {
		return
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
		return
	}
	retryAfter := time.Second
	if v := restErr.Response.Header.Get("Retry-After"); v != "" {
		if secs, perr := strconv.ParseFloat(v, 64); perr == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	p.pacer.Pause(guildID, retryAfter)
}

// classify tags timeout-like errors with roster.ErrFetchTimeout
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", roster.ErrFetchTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", roster.ErrFetchTimeout, err)
	}
	return err
}
