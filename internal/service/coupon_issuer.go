package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/metrics"
	"github.com/avisly/playengine/internal/model"
	"github.com/avisly/playengine/internal/repository"
)

// ErrCodeSpaceExhausted is returned when every generated code was taken
var ErrCodeSpaceExhausted = errors.New("no unique coupon code found")

// CouponWriter persists coupons
type CouponWriter interface {
	CreateCoupon(ctx context.Context, coupon *model.Coupon) error
}

// CouponIssuer binds a redemption code to a winning session
type CouponIssuer struct {
	generate CodeGenerator
	ttl      time.Duration
	attempts int
	logger   zerolog.Logger
}

// NewCouponIssuer creates an issuer. A nil generator means GenerateCode.
func NewCouponIssuer(generate CodeGenerator, ttl time.Duration, attempts int, logger zerolog.Logger) *CouponIssuer {
	if generate == nil {
		generate = GenerateCode
	}
	if attempts < 1 {
		attempts = 1
	}
	return &CouponIssuer{
		generate: generate,
		ttl:      ttl,
		attempts: attempts,
		logger:   logger.With().Str("component", "coupon-issuer").Logger(),
	}
}

// IssueIfPrize creates an unused coupon for session when reward is a prize.
// It returns a nil coupon for filler rewards.
func (i *CouponIssuer) IssueIfPrize(ctx context.Context, w CouponWriter, session *model.PlaySession, reward *model.Reward, now time.Time) (*model.Coupon, error) {
	if reward == nil || !reward.IsPrize {
		return nil, nil
	}

	for attempt := 1; attempt <= i.attempts; attempt++ {
		code, err := i.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate coupon code: %w", err)
		}

		coupon := &model.Coupon{
			ID:        uuid.New(),
			SessionID: session.ID,
			Code:      NormalizeCode(code),
			Status:    model.CouponUnused,
			ExpiresAt: now.Add(i.ttl),
			CreatedAt: now,
		}

		err = w.CreateCoupon(ctx, coupon)
		if err == nil {
			return coupon, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, fmt.Errorf("failed to store coupon: %w", err)
		}

		metrics.RecordCodeCollision()
		i.logger.Debug().
			Str("session_id", session.ID.String()).
			Int("attempt", attempt).
			Msg("Coupon code collision, regenerating")
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, i.attempts)
}
