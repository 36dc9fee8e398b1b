package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Invalidator drops cached roster state for a guild
type Invalidator interface {
	Clear(guildID string)
}

// EventHandlers invalidates the roster cache when the gateway may have
// missed events for the mirrored guild. Member and role changes themselves
// are applied to the session state by discordgo and need no invalidation.
type EventHandlers struct {
	guildID string
	cache   Invalidator
	logger  *zap.Logger
}

// NewEventHandlers creates handlers for guildID
func NewEventHandlers(guildID string, cache Invalidator, logger *zap.Logger) *EventHandlers {
	return &EventHandlers{
		guildID: guildID,
		cache:   cache,
		logger:  logger,
	}
}

// Register attaches the handlers to session and returns a function that detaches them
func (h *EventHandlers) Register(session *discordgo.Session) func() {
	removers := []func(){
		// A new session (not a resume) does not replay what happened while disconnected.
		session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
			h.handle("READY", h.guildID)
		}),
		// Sent on join and whenever the guild becomes available after an outage.
		session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
			if e.Guild != nil {
				h.handle("GUILD_CREATE", e.Guild.ID)
			}
		}),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (h *EventHandlers) handle(event, guildID string) {
	if guildID == "" || guildID != h.guildID {
		return
	}
	h.cache.Clear(guildID)
	h.logger.Debug("roster cache invalidated by gateway event",
		zap.String("event", event),
		zap.String("guild_id", guildID),
	)
}
