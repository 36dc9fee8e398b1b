package models

import "time"

// Freshness is the outcome of a roster cache check
type Freshness int

const (
	// FreshnessFresh means the local roster was just fetched or is within its TTL
	FreshnessFresh Freshness = iota
	// FreshnessDegraded means a recent fetch failed and callers should use whatever is cached
	FreshnessDegraded
)

// String returns the lowercase name of the freshness signal
func (f Freshness) String() string {
	switch f {
	case FreshnessFresh:
		return "fresh"
	case FreshnessDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// RosterCacheState is a point-in-time view of one guild's cache bookkeeping
type RosterCacheState struct {
	GuildID     string    `json:"guild_id"`
	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`
	InFlight    bool      `json:"in_flight"`
}

// IsFresh checks whether the last successful fetch is younger than ttl
func (s *RosterCacheState) IsFresh(now time.Time, ttl time.Duration) bool {
	return !s.LastSuccess.IsZero() && now.Sub(s.LastSuccess) < ttl
}

// InCooldown checks whether the last failure is younger than cooldown
func (s *RosterCacheState) InCooldown(now time.Time, cooldown time.Duration) bool {
	return !s.LastFailure.IsZero() && now.Sub(s.LastFailure) < cooldown
}
