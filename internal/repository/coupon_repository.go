package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// CouponRepository handles coupon data operations
type CouponRepository struct{}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{}
}

// CreateCoupon inserts a coupon. A taken code yields ErrDuplicateCode
// without aborting the surrounding transaction.
func (r *CouponRepository) CreateCoupon(ctx context.Context, db DBExecutor, coupon *model.Coupon) error {
	query := `
		INSERT INTO coupons (id, session_id, code, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO NOTHING
	`

	result, err := db.ExecContext(ctx, query,
		coupon.ID, coupon.SessionID, coupon.Code, coupon.Status, coupon.ExpiresAt, coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create coupon: %w", ErrConflict)
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	if err := requireAffected(result); err != nil {
		if err == ErrNotUpdated {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	return nil
}

// GetCouponByCode retrieves a coupon with its owning restaurant and reward label
func (r *CouponRepository) GetCouponByCode(ctx context.Context, db DBExecutor, code string) (*model.CouponDetails, error) {
	query := `
		SELECT c.id, c.session_id, c.code, c.status, c.expires_at, c.used_at, c.created_at,
			s.campaign_id, ca.restaurant_id, COALESCE(rw.label, '') AS reward_label
		FROM coupons c
		JOIN sessions s ON s.id = c.session_id
		JOIN campaigns ca ON ca.id = s.campaign_id
		LEFT JOIN rewards rw ON rw.id = s.reward_id
		WHERE c.code = $1
	`

	var details model.CouponDetails
	if err := db.GetContext(ctx, &details, query, code); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return &details, nil
}

// GetCouponBySession retrieves the coupon spawned by a session
func (r *CouponRepository) GetCouponBySession(ctx context.Context, db DBExecutor, sessionID uuid.UUID) (*model.Coupon, error) {
	query := `
		SELECT id, session_id, code, status, expires_at, used_at, created_at
		FROM coupons
		WHERE session_id = $1
	`

	var coupon model.Coupon
	if err := db.GetContext(ctx, &coupon, query, sessionID); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon by session: %w", err)
	}

	return &coupon, nil
}

// MarkCouponUsed updates coupon status from 'unused' to 'used'
func (r *CouponRepository) MarkCouponUsed(ctx context.Context, db DBExecutor, couponID uuid.UUID, usedAt time.Time) error {
	query := `
		UPDATE coupons
		SET status = 'used', used_at = $1
		WHERE id = $2 AND status = 'unused'
	`

	result, err := db.ExecContext(ctx, query, usedAt, couponID)
	if err != nil {
		return fmt.Errorf("failed to mark coupon as used: %w", err)
	}

	return requireAffected(result)
}
