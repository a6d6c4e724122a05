package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/avisly/playengine/internal/model"
)

// PostgresStore implements Store on top of sqlx
type PostgresStore struct {
	db   *sqlx.DB
	exec DBExecutor
	inTx bool

	campaignRepo *CampaignRepository
	sessionRepo  *SessionRepository
	couponRepo   *CouponRepository
	eventRepo    *EventRepository
}

// NewPostgresStore creates a store backed by PostgreSQL
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:           db,
		exec:         db,
		campaignRepo: NewCampaignRepository(),
		sessionRepo:  NewSessionRepository(),
		couponRepo:   NewCouponRepository(),
		eventRepo:    NewEventRepository(),
	}
}

var _ Store = (*PostgresStore)(nil)

// GetRestaurant retrieves a restaurant by ID
func (s *PostgresStore) GetRestaurant(ctx context.Context, id uuid.UUID) (*model.Restaurant, error) {
	return s.campaignRepo.GetRestaurant(ctx, s.exec, id)
}

// GetRestaurantByOwner retrieves the restaurant of a dashboard user
func (s *PostgresStore) GetRestaurantByOwner(ctx context.Context, ownerID string) (*model.Restaurant, error) {
	return s.campaignRepo.GetRestaurantByOwner(ctx, s.exec, ownerID)
}

// GetCampaign retrieves a campaign by ID
func (s *PostgresStore) GetCampaign(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return s.campaignRepo.GetCampaign(ctx, s.exec, id)
}

// GetActiveCampaign retrieves the newest active campaign of a restaurant
func (s *PostgresStore) GetActiveCampaign(ctx context.Context, restaurantID uuid.UUID) (*model.Campaign, error) {
	return s.campaignRepo.GetActiveCampaign(ctx, s.exec, restaurantID)
}

// ListRewards retrieves the rewards of a campaign in display order
func (s *PostgresStore) ListRewards(ctx context.Context, campaignID uuid.UUID) ([]model.Reward, error) {
	return s.campaignRepo.ListRewards(ctx, s.exec, campaignID)
}

// GetReward retrieves one reward of a campaign
func (s *PostgresStore) GetReward(ctx context.Context, campaignID, rewardID uuid.UUID) (*model.Reward, error) {
	return s.campaignRepo.GetReward(ctx, s.exec, campaignID, rewardID)
}

// CreateSession inserts a new session
func (s *PostgresStore) CreateSession(ctx context.Context, session *model.PlaySession) error {
	return s.sessionRepo.CreateSession(ctx, s.exec, session)
}

// GetSession retrieves a session scoped to its campaign
func (s *PostgresStore) GetSession(ctx context.Context, sessionID, campaignID uuid.UUID) (*model.PlaySession, error) {
	return s.sessionRepo.GetSession(ctx, s.exec, sessionID, campaignID)
}

// CountRecentSessions counts sessions from an IP after since
func (s *PostgresStore) CountRecentSessions(ctx context.Context, campaignID uuid.UUID, ip string, since time.Time) (int, error) {
	return s.sessionRepo.CountRecentSessions(ctx, s.exec, campaignID, ip, since)
}

// AttachReward conditionally assigns the reward
func (s *PostgresStore) AttachReward(ctx context.Context, sessionID, campaignID, rewardID uuid.UUID) error {
	return s.sessionRepo.AttachReward(ctx, s.exec, sessionID, campaignID, rewardID)
}

// AttachRating conditionally assigns the rating
func (s *PostgresStore) AttachRating(ctx context.Context, sessionID, campaignID uuid.UUID, rating int, feedback *string) error {
	return s.sessionRepo.AttachRating(ctx, s.exec, sessionID, campaignID, rating, feedback)
}

// CreateCoupon inserts a coupon
func (s *PostgresStore) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	return s.couponRepo.CreateCoupon(ctx, s.exec, coupon)
}

// GetCouponByCode retrieves a coupon with its redemption context
func (s *PostgresStore) GetCouponByCode(ctx context.Context, code string) (*model.CouponDetails, error) {
	return s.couponRepo.GetCouponByCode(ctx, s.exec, code)
}

// GetCouponBySession retrieves the coupon of a session
func (s *PostgresStore) GetCouponBySession(ctx context.Context, sessionID uuid.UUID) (*model.Coupon, error) {
	return s.couponRepo.GetCouponBySession(ctx, s.exec, sessionID)
}

// MarkCouponUsed conditionally consumes a coupon
func (s *PostgresStore) MarkCouponUsed(ctx context.Context, couponID uuid.UUID, usedAt time.Time) error {
	return s.couponRepo.MarkCouponUsed(ctx, s.exec, couponID, usedAt)
}

// InsertEvents appends analytics events
func (s *PostgresStore) InsertEvents(ctx context.Context, events ...model.AnalyticsEvent) error {
	return s.eventRepo.InsertEvents(ctx, s.exec, events)
}

// WithTx runs fn inside a transaction. Nested calls join the outer one.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := *s
	txStore.exec = tx
	txStore.inTx = true

	if err := fn(&txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
