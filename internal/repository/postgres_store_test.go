package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/avisly/playengine/internal/database"
	"github.com/avisly/playengine/internal/model"
)

func newPostgresStore(t *testing.T) (*PostgresStore, *sqlx.DB) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewPostgresStore(db), db
}

func seedPostgres(t *testing.T, db *sqlx.DB) (model.Campaign, model.Reward) {
	t.Helper()
	ctx := context.Background()
	restaurantID, campaignID := uuid.New(), uuid.New()
	reward := model.Reward{ID: uuid.New(), CampaignID: campaignID, Label: "Dessert", IsPrize: true}

	db.MustExecContext(ctx, `INSERT INTO restaurants (id, owner_id, name) VALUES ($1, $2, $3)`,
		restaurantID, "owner-"+restaurantID.String(), "Chez Test")
	db.MustExecContext(ctx, `INSERT INTO campaigns (id, restaurant_id, is_active, win_probability) VALUES ($1, $2, true, 70)`,
		campaignID, restaurantID)
	db.MustExecContext(ctx, `INSERT INTO rewards (id, campaign_id, label, is_prize, display_order) VALUES ($1, $2, $3, $4, 0)`,
		reward.ID, campaignID, reward.Label, reward.IsPrize)

	return model.Campaign{ID: campaignID, RestaurantID: restaurantID}, reward
}

func TestPostgresStoreFlow(t *testing.T) {
	store, db := newPostgresStore(t)
	campaign, reward := seedPostgres(t, db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	active, err := store.GetActiveCampaign(ctx, campaign.RestaurantID)
	if err != nil {
		t.Fatalf("get active campaign: %v", err)
	}
	if active.ID != campaign.ID || active.EffectiveWinProbability() != 70 {
		t.Errorf("unexpected campaign %+v", active)
	}

	session := model.PlaySession{ID: uuid.New(), CampaignID: campaign.ID, IPAddress: "203.0.113.7", CreatedAt: now}
	if err := store.CreateSession(ctx, &session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	count, err := store.CountRecentSessions(ctx, campaign.ID, session.IPAddress, now.Add(-time.Hour))
	if err != nil || count != 1 {
		t.Fatalf("expected one recent session, got %d (%v)", count, err)
	}

	if err := store.AttachReward(ctx, session.ID, campaign.ID, reward.ID); err != nil {
		t.Fatalf("attach reward: %v", err)
	}
	if err := store.AttachReward(ctx, session.ID, campaign.ID, reward.ID); !errors.Is(err, ErrNotUpdated) {
		t.Errorf("expected ErrNotUpdated, got %v", err)
	}

	coupon := model.Coupon{ID: uuid.New(), SessionID: session.ID, Code: randomCode(), Status: model.CouponUnused, ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	err = store.WithTx(ctx, func(tx Store) error {
		if err := tx.AttachRating(ctx, session.ID, campaign.ID, 5, nil); err != nil {
			return err
		}
		return tx.CreateCoupon(ctx, &coupon)
	})
	if err != nil {
		t.Fatalf("rate transaction: %v", err)
	}

	details, err := store.GetCouponByCode(ctx, coupon.Code)
	if err != nil {
		t.Fatalf("get coupon: %v", err)
	}
	if details.RestaurantID != campaign.RestaurantID || details.RewardLabel != reward.Label {
		t.Errorf("unexpected details %+v", details)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.MarkCouponUsed(ctx, coupon.ID, now) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected exactly one redemption, got %d", wins.Load())
	}
}

func TestPostgresStoreDuplicateCodeKeepsTransaction(t *testing.T) {
	store, db := newPostgresStore(t)
	campaign, _ := seedPostgres(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := model.PlaySession{ID: uuid.New(), CampaignID: campaign.ID, IPAddress: "198.51.100.1", CreatedAt: now}
	second := model.PlaySession{ID: uuid.New(), CampaignID: campaign.ID, IPAddress: "198.51.100.2", CreatedAt: now}
	for _, s := range []*model.PlaySession{&first, &second} {
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	code := randomCode()
	taken := model.Coupon{ID: uuid.New(), SessionID: first.ID, Code: code, Status: model.CouponUnused, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	if err := store.CreateCoupon(ctx, &taken); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	err := store.WithTx(ctx, func(tx Store) error {
		clash := model.Coupon{ID: uuid.New(), SessionID: second.ID, Code: code, Status: model.CouponUnused, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
		if err := tx.CreateCoupon(ctx, &clash); !errors.Is(err, ErrDuplicateCode) {
			t.Errorf("expected ErrDuplicateCode, got %v", err)
		}
		retry := clash
		retry.Code = randomCode()
		return tx.CreateCoupon(ctx, &retry)
	})
	if err != nil {
		t.Fatalf("expected retry inside the same transaction to succeed, got %v", err)
	}

	again := model.Coupon{ID: uuid.New(), SessionID: first.ID, Code: randomCode(), Status: model.CouponUnused, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	if err := store.CreateCoupon(ctx, &again); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for a second coupon of one session, got %v", err)
	}
}

// randomCode returns a code unlikely to clash with earlier test runs
func randomCode() string {
	return uuid.NewString()[:8]
}
