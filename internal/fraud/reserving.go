package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/metrics"
)

// Reserver atomically claims a key for a duration
type Reserver interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReserver implements Reserver with SET NX
type RedisReserver struct {
	client *redis.Client
	prefix string
}

// NewRedisReserver creates a reserver storing keys under prefix
func NewRedisReserver(client *redis.Client, prefix string) *RedisReserver {
	return &RedisReserver{client: client, prefix: prefix}
}

// Reserve claims key for ttl. It returns false when the key is already held.
func (r *RedisReserver) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve key %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a reservation
func (r *RedisReserver) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release key %s: %w", key, err)
	}
	return nil
}

// ReservingGate admits at most one session per (campaign, IP) per window,
// even under concurrent scans. It consults next first so existing sessions
// still count after a reservation expires or is lost.
type ReservingGate struct {
	next     Gate
	bypass   *BypassPolicy
	reserver Reserver
	window   time.Duration
	logger   zerolog.Logger
}

// NewReservingGate wraps next with an atomic reservation
func NewReservingGate(next Gate, bypass *BypassPolicy, reserver Reserver, window time.Duration, logger zerolog.Logger) *ReservingGate {
	return &ReservingGate{
		next:     next,
		bypass:   bypass,
		reserver: reserver,
		window:   window,
		logger:   logger.With().Str("component", "fraud-gate").Logger(),
	}
}

func reservationKey(campaignID uuid.UUID, ip string) string {
	return campaignID.String() + ":" + ip
}

// MayCreateSession implements Gate
func (g *ReservingGate) MayCreateSession(ctx context.Context, campaignID uuid.UUID, client ClientContext) (bool, error) {
	if g.bypass.Allows(client) {
		return true, nil
	}

	ok, err := g.next.MayCreateSession(ctx, campaignID, client)
	if err != nil || !ok {
		return ok, err
	}

	reserved, err := g.reserver.Reserve(ctx, reservationKey(campaignID, client.IP), g.window)
	if err != nil {
		return false, err
	}
	if !reserved {
		metrics.RecordFraudDenial("reservation")
		g.logger.Info().
			Str("campaign_id", campaignID.String()).
			Str("ip", client.IP).
			Msg("Session refused by concurrent reservation")
		return false, nil
	}

	return true, nil
}

// Release implements Releaser
func (g *ReservingGate) Release(ctx context.Context, campaignID uuid.UUID, client ClientContext) error {
	if g.bypass.Allows(client) {
		return nil
	}
	return g.reserver.Release(ctx, reservationKey(campaignID, client.IP))
}
