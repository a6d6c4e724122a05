// Package fraud throttles repeat play per visitor.
//
// The throttle keys on the client IP address. IPs are shared behind NAT and
// public wifi, and X-Forwarded-For can be forged by the client, so this is
// a rate-limiting heuristic and not a security boundary. Gate is kept
// narrow so the policy can be replaced without touching the engine.
package fraud

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/metrics"
)

// ClientContext describes who is asking for a new session
type ClientContext struct {
	IP     string
	Caller *auth.Identity // nil for anonymous players
}

// Gate decides whether a new play session may be created
type Gate interface {
	MayCreateSession(ctx context.Context, campaignID uuid.UUID, client ClientContext) (bool, error)
}

// Releaser is implemented by gates that hold state for an admitted client.
// Release undoes an admission whose session was never created.
type Releaser interface {
	Release(ctx context.Context, campaignID uuid.UUID, client ClientContext) error
}

// SessionCounter counts sessions of a campaign from an IP created after since
type SessionCounter interface {
	CountRecentSessions(ctx context.Context, campaignID uuid.UUID, ip string, since time.Time) (int, error)
}

// BypassPolicy admits test networks and operator accounts unconditionally
type BypassPolicy struct {
	networks  []netip.Prefix
	operators map[string]bool
}

// NewBypassPolicy parses network prefixes (CIDR or single address) and
// operator user ids
func NewBypassPolicy(networks, operatorIDs []string) (*BypassPolicy, error) {
	networkPrefixes, err := ParsePrefixes(networks)
	if err != nil {
		return nil, fmt.Errorf("invalid bypass networks: %w", err)
	}
	p := &BypassPolicy{
		networks:  networkPrefixes,
		operators: make(map[string]bool, len(operatorIDs)),
	}

	for _, id := range operatorIDs {
		if id = strings.TrimSpace(id); id != "" {
			p.operators[id] = true
		}
	}

	return p, nil
}

// Allows reports whether client skips the throttle
func (p *BypassPolicy) Allows(client ClientContext) bool {
	if p == nil {
		return false
	}
	if client.Caller != nil {
		if client.Caller.HasRole(auth.RoleOperator) || p.operators[client.Caller.UserID] {
			return true
		}
	}

	return inPrefixes(client.IP, p.networks)
}

// WindowGate denies a session when the same IP already played the same
// campaign inside the trailing window.
//
// Two concurrent scans can both pass the check before either session is
// committed. Wrap it in a ReservingGate when that matters.
type WindowGate struct {
	counter SessionCounter
	bypass  *BypassPolicy
	window  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewWindowGate creates a window gate
func NewWindowGate(counter SessionCounter, bypass *BypassPolicy, window time.Duration, logger zerolog.Logger) *WindowGate {
	return &WindowGate{
		counter: counter,
		bypass:  bypass,
		window:  window,
		now:     time.Now,
		logger:  logger.With().Str("component", "fraud-gate").Logger(),
	}
}

// WithClock replaces the time source
func (g *WindowGate) WithClock(now func() time.Time) *WindowGate {
	g.now = now
	return g
}

// MayCreateSession implements Gate
func (g *WindowGate) MayCreateSession(ctx context.Context, campaignID uuid.UUID, client ClientContext) (bool, error) {
	if g.bypass.Allows(client) {
		return true, nil
	}

	since := g.now().Add(-g.window)
	count, err := g.counter.CountRecentSessions(ctx, campaignID, client.IP, since)
	if err != nil {
		return false, fmt.Errorf("failed to check recent sessions: %w", err)
	}

	if count > 0 {
		metrics.RecordFraudDenial("window")
		g.logger.Info().
			Str("campaign_id", campaignID.String()).
			Str("ip", client.IP).
			Int("recent_sessions", count).
			Msg("Session refused by play window")
		return false, nil
	}

	return true, nil
}
