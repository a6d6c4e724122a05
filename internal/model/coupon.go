package model

import (
	"time"

	"github.com/google/uuid"
)

// CouponStatus is the stored redemption state of a coupon
type CouponStatus string

const (
	CouponUnused  CouponStatus = "unused"
	CouponUsed    CouponStatus = "used"
	CouponExpired CouponStatus = "expired"
)

// Coupon is a short-lived, single-use code bound to a winning session
type Coupon struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	SessionID uuid.UUID    `db:"session_id" json:"session_id"`
	Code      string       `db:"code" json:"code"`
	Status    CouponStatus `db:"status" json:"status"`
	ExpiresAt time.Time    `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time   `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// IsExpiredAt reports whether the coupon is past its expiry at t.
// The stored status is not swept, so the clock is authoritative.
func (c *Coupon) IsExpiredAt(t time.Time) bool {
	return c.Status == CouponExpired || t.After(c.ExpiresAt)
}

// StatusAt returns the status as seen at t, deriving expired from the clock
func (c *Coupon) StatusAt(t time.Time) CouponStatus {
	if c.Status == CouponUsed {
		return CouponUsed
	}
	if c.IsExpiredAt(t) {
		return CouponExpired
	}
	return c.Status
}

// CouponDetails is a coupon joined with the records needed to redeem it
type CouponDetails struct {
	Coupon
	CampaignID   uuid.UUID `db:"campaign_id" json:"campaign_id"`
	RestaurantID uuid.UUID `db:"restaurant_id" json:"restaurant_id"`
	RewardLabel  string    `db:"reward_label" json:"reward_label"`
}
