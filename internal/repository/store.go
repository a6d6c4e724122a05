package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/avisly/playengine/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrNotUpdated is returned when a conditional update matched no row
	ErrNotUpdated = errors.New("conditional update matched no row")

	// ErrDuplicateCode is returned when a coupon code is already taken
	ErrDuplicateCode = errors.New("coupon code already exists")

	// ErrConflict is returned on any other uniqueness violation
	ErrConflict = errors.New("unique constraint violated")
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store is the backing store of the play engine.
//
// AttachReward, AttachRating and MarkCouponUsed are conditional updates:
// they return ErrNotUpdated when the guarded column no longer holds the
// expected value, which is how concurrent losers are detected.
type Store interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*model.Restaurant, error)
	GetRestaurantByOwner(ctx context.Context, ownerID string) (*model.Restaurant, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	GetActiveCampaign(ctx context.Context, restaurantID uuid.UUID) (*model.Campaign, error)
	ListRewards(ctx context.Context, campaignID uuid.UUID) ([]model.Reward, error)
	GetReward(ctx context.Context, campaignID, rewardID uuid.UUID) (*model.Reward, error)

	CreateSession(ctx context.Context, session *model.PlaySession) error
	GetSession(ctx context.Context, sessionID, campaignID uuid.UUID) (*model.PlaySession, error)
	CountRecentSessions(ctx context.Context, campaignID uuid.UUID, ip string, since time.Time) (int, error)
	AttachReward(ctx context.Context, sessionID, campaignID, rewardID uuid.UUID) error
	AttachRating(ctx context.Context, sessionID, campaignID uuid.UUID, rating int, feedback *string) error

	CreateCoupon(ctx context.Context, coupon *model.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*model.CouponDetails, error)
	GetCouponBySession(ctx context.Context, sessionID uuid.UUID) (*model.Coupon, error)
	MarkCouponUsed(ctx context.Context, couponID uuid.UUID, usedAt time.Time) error

	InsertEvents(ctx context.Context, events ...model.AnalyticsEvent) error

	// WithTx runs fn against a store bound to a single transaction
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
}

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotUpdated
	}
	return nil
}
