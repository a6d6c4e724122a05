package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/analytics"
	"github.com/avisly/playengine/internal/apperr"
	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/fraud"
	"github.com/avisly/playengine/internal/model"
	"github.com/avisly/playengine/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store      *repository.MemoryStore
	svc        *PlayService
	clock      *fakeClock
	restaurant model.Restaurant
	campaign   model.Campaign
	prize      model.Reward
	filler     model.Reward
}

func (f *fixture) staff() *auth.Identity {
	return &auth.Identity{UserID: "staff-1", RestaurantID: f.restaurant.ID}
}

func newFixture(t *testing.T, winProbability int) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 5, 4, 19, 0, 0, 0, time.UTC)}

	restaurant := model.Restaurant{
		ID:        uuid.New(),
		OwnerID:   "owner-a",
		Name:      "Chez A",
		ReviewURL: "https://g.page/r/chez-a/review",
	}
	campaign := model.Campaign{
		ID:             uuid.New(),
		RestaurantID:   restaurant.ID,
		Name:           "Spring wheel",
		IsActive:       true,
		WinProbability: &winProbability,
		CreatedAt:      clock.Now(),
	}
	prize := model.Reward{ID: uuid.New(), Label: "Café offert", IsPrize: true, DisplayOrder: 0}
	filler := model.Reward{ID: uuid.New(), Label: "Merci", IsPrize: false, DisplayOrder: 1}

	store.PutRestaurant(restaurant)
	store.PutCampaign(campaign)
	store.PutRewards(campaign.ID, []model.Reward{prize, filler})
	prize.CampaignID, filler.CampaignID = campaign.ID, campaign.ID

	bypass, err := fraud.NewBypassPolicy(nil, nil)
	if err != nil {
		t.Fatalf("failed to build bypass policy: %v", err)
	}
	gate := fraud.NewWindowGate(store, bypass, 24*time.Hour, zerolog.Nop()).WithClock(clock.Now)
	emitter := analytics.NewRecorder(zerolog.Nop(), analytics.NewStoreSink(store))

	svc := NewPlayService(store, gate, emitter, DefaultOptions(), zerolog.Nop()).WithClock(clock.Now)

	return &fixture{
		store:      store,
		svc:        svc,
		clock:      clock,
		restaurant: restaurant,
		campaign:   campaign,
		prize:      prize,
		filler:     filler,
	}
}

func (f *fixture) scan(t *testing.T, ip string) uuid.UUID {
	t.Helper()
	res, err := f.svc.InitSession(context.Background(), InitSessionInput{
		CampaignID: f.campaign.ID,
		Client:     fraud.ClientContext{IP: ip},
	})
	if err != nil {
		t.Fatalf("init session failed: %v", err)
	}
	return res.SessionID
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func eventTypes(events []model.AnalyticsEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.EventType))
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	sessionID := f.scan(t, "1.2.3.4")

	spin, err := f.svc.Spin(ctx, f.campaign.ID, sessionID)
	if err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	if spin.Index != 0 || spin.RewardID != f.prize.ID || spin.Label != "Café offert" {
		t.Fatalf("expected Café offert at index 0, got %+v", spin)
	}

	rated, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	coupon := rated.Coupon
	if coupon == nil {
		t.Fatal("expected a coupon for a prize")
	}
	if coupon.Status != model.CouponUnused {
		t.Errorf("expected unused coupon, got %s", coupon.Status)
	}
	if want := f.clock.Now().Add(10 * time.Minute); !coupon.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, coupon.ExpiresAt)
	}
	if len(coupon.Code) != CodeLength || coupon.Code != strings.ToUpper(coupon.Code) {
		t.Errorf("unexpected code %q", coupon.Code)
	}

	_, err = f.svc.Spin(ctx, f.campaign.ID, sessionID)
	assertKind(t, err, apperr.AlreadyPlayed)

	redeemed, err := f.svc.Redeem(ctx, coupon.Code, f.staff())
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if redeemed.RewardLabel != "Café offert" {
		t.Errorf("expected Café offert, got %q", redeemed.RewardLabel)
	}
	stored, err := f.store.GetCouponBySession(ctx, sessionID)
	if err != nil {
		t.Fatalf("failed to reload coupon: %v", err)
	}
	if stored.Status != model.CouponUsed || stored.UsedAt == nil {
		t.Errorf("expected used coupon with timestamp, got %+v", stored)
	}

	_, err = f.svc.Redeem(ctx, coupon.Code, f.staff())
	assertKind(t, err, apperr.AlreadyUsed)

	want := []string{"scan", "spin_completed", "rating_submitted", "reward_revealed", "coupon_validated"}
	got := eventTypes(f.store.Events())
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, got)
	}
	for _, e := range f.store.Events() {
		if e.SessionID != sessionID {
			t.Errorf("event %s references session %s", e.EventType, e.SessionID)
		}
	}
}

func TestConcurrentSpinSucceedsOnce(t *testing.T) {
	f := newFixture(t, 50)
	sessionID := f.scan(t, "1.2.3.4")

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     []*SpinResult
		failures []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.Spin(context.Background(), f.campaign.ID, sessionID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			wins = append(wins, res)
		}()
	}
	close(start)
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("expected exactly one successful spin, got %d", len(wins))
	}
	for _, err := range failures {
		assertKind(t, err, apperr.AlreadyPlayed)
	}

	session, err := f.store.GetSession(context.Background(), sessionID, f.campaign.ID)
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if session.RewardID == nil || *session.RewardID != wins[0].RewardID {
		t.Errorf("stored reward %v does not match the winning draw %s", session.RewardID, wins[0].RewardID)
	}
}

// playToCoupon returns the code of a freshly won coupon
func playToCoupon(t *testing.T, f *fixture, ip string) string {
	t.Helper()
	ctx := context.Background()
	sessionID := f.scan(t, ip)
	if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	rated, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if rated.Coupon == nil {
		t.Fatal("expected a coupon")
	}
	return rated.Coupon.Code
}

func TestConcurrentRedeemSucceedsOnce(t *testing.T) {
	f := newFixture(t, 100)
	code := playToCoupon(t, f, "1.2.3.4")

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Redeem(context.Background(), code, f.staff())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one redemption, got %d", successes)
	}
	if len(failures) != n-1 {
		t.Fatalf("expected %d failures, got %d", n-1, len(failures))
	}
	for _, err := range failures {
		assertKind(t, err, apperr.AlreadyUsed)
	}
}

func TestRedeemCallerResolution(t *testing.T) {
	f := newFixture(t, 100)
	other := model.Restaurant{ID: uuid.New(), OwnerID: "owner-b", Name: "Chez B"}
	f.store.PutRestaurant(other)

	tests := []struct {
		name     string
		caller   *auth.Identity
		wantKind apperr.Kind
	}{
		{name: "other restaurant claim", caller: &auth.Identity{UserID: "staff-b", RestaurantID: other.ID}, wantKind: apperr.Forbidden},
		{name: "other restaurant owner", caller: &auth.Identity{UserID: "owner-b"}, wantKind: apperr.Forbidden},
		{name: "user without restaurant", caller: &auth.Identity{UserID: "stranger"}, wantKind: apperr.Forbidden},
		{name: "anonymous", caller: nil, wantKind: apperr.Unauthenticated},
		{name: "owner of the issuing restaurant", caller: &auth.Identity{UserID: "owner-a"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := playToCoupon(t, f, "10.0.0."+string(rune('1'+i)))

			_, err := f.svc.Redeem(context.Background(), code, tt.caller)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			assertKind(t, err, tt.wantKind)

			// a refused attempt leaves the coupon redeemable by its owner
			if _, err := f.svc.Redeem(context.Background(), code, f.staff()); err != nil {
				t.Errorf("expected owner redemption to succeed, got %v", err)
			}
		})
	}
}

func TestRedeemValidation(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	sessionID := f.scan(t, "1.2.3.4")
	if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	f.store.PutCoupon(model.Coupon{
		ID:        uuid.New(),
		SessionID: sessionID,
		Code:      "EXP123",
		Status:    model.CouponUnused,
		ExpiresAt: f.clock.Now().Add(-time.Second),
		CreatedAt: f.clock.Now().Add(-10 * time.Minute),
	})

	t.Run("expired one second ago", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, "EXP123", f.staff())
		assertKind(t, err, apperr.Expired)

		stored, err := f.store.GetCouponBySession(ctx, sessionID)
		if err != nil {
			t.Fatalf("failed to reload coupon: %v", err)
		}
		if stored.Status != model.CouponUnused {
			t.Errorf("expected stored status to stay unused, got %s", stored.Status)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, "NOPE00", f.staff())
		assertKind(t, err, apperr.InvalidCode)
	})

	t.Run("unknown code from a caller without restaurant", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, "NOPE00", &auth.Identity{UserID: "stranger"})
		assertKind(t, err, apperr.InvalidCode)
	})

	t.Run("blank code", func(t *testing.T) {
		_, err := f.svc.Redeem(ctx, "   ", f.staff())
		assertKind(t, err, apperr.InvalidCode)
	})

	t.Run("typed in lowercase", func(t *testing.T) {
		code := playToCoupon(t, f, "1.2.3.5")
		if _, err := f.svc.Redeem(ctx, " "+strings.ToLower(code)+" ", f.staff()); err != nil {
			t.Errorf("expected case-insensitive match, got %v", err)
		}
	})
}

func TestFraudGateWindow(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	f.scan(t, "1.2.3.4")

	_, err := f.svc.InitSession(ctx, InitSessionInput{CampaignID: f.campaign.ID, Client: fraud.ClientContext{IP: "1.2.3.4"}})
	assertKind(t, err, apperr.FraudLimit)
	if msg := apperr.PublicMessage(err); !strings.Contains(msg, "Come back tomorrow") {
		t.Errorf("unexpected fraud message %q", msg)
	}
	if n := len(f.store.Events()); n != 1 {
		t.Errorf("expected only the first scan event, got %d events", n)
	}

	// another spelling of the same address is the same visitor
	_, err = f.svc.InitSession(ctx, InitSessionInput{CampaignID: f.campaign.ID, Client: fraud.ClientContext{IP: "::ffff:1.2.3.4"}})
	assertKind(t, err, apperr.FraudLimit)

	// another visitor is unaffected
	f.scan(t, "5.6.7.8")

	f.clock.Advance(24*time.Hour + time.Second)
	f.scan(t, "1.2.3.4")
}

func TestFraudGateOperatorBypass(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	operator := &auth.Identity{UserID: "ops", Roles: []string{auth.RoleOperator}}

	for i := 0; i < 3; i++ {
		_, err := f.svc.InitSession(ctx, InitSessionInput{
			CampaignID: f.campaign.ID,
			Client:     fraud.ClientContext{IP: "1.2.3.4", Caller: operator},
		})
		if err != nil {
			t.Fatalf("operator scan %d refused: %v", i, err)
		}
	}
}

func TestInitSessionErrors(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	_, err := f.svc.InitSession(ctx, InitSessionInput{CampaignID: uuid.New(), Client: fraud.ClientContext{IP: "1.2.3.4"}})
	assertKind(t, err, apperr.NotFound)

	inactive := f.campaign
	inactive.ID = uuid.New()
	inactive.IsActive = false
	f.store.PutCampaign(inactive)

	_, err = f.svc.InitSession(ctx, InitSessionInput{CampaignID: inactive.ID, Client: fraud.ClientContext{IP: "1.2.3.4"}})
	assertKind(t, err, apperr.CampaignInactive)
}

type failingCreateStore struct {
	*repository.MemoryStore
}

func (s failingCreateStore) CreateSession(context.Context, *model.PlaySession) error {
	return errors.New("connection reset")
}

type releasingGate struct {
	released []fraud.ClientContext
}

func (g *releasingGate) MayCreateSession(context.Context, uuid.UUID, fraud.ClientContext) (bool, error) {
	return true, nil
}

func (g *releasingGate) Release(_ context.Context, _ uuid.UUID, client fraud.ClientContext) error {
	g.released = append(g.released, client)
	return nil
}

func TestInitSessionReleasesAdmissionOnFailure(t *testing.T) {
	f := newFixture(t, 50)
	gate := &releasingGate{}
	svc := NewPlayService(failingCreateStore{f.store}, gate, analytics.NewRecorder(zerolog.Nop()), DefaultOptions(), zerolog.Nop())

	_, err := svc.InitSession(context.Background(), InitSessionInput{CampaignID: f.campaign.ID, Client: fraud.ClientContext{IP: "1.2.3.4"}})
	assertKind(t, err, apperr.Internal)
	if apperr.PublicMessage(err) == "connection reset" {
		t.Error("internal cause leaked into the public message")
	}
	if len(gate.released) != 1 || gate.released[0].IP != "1.2.3.4" {
		t.Errorf("expected the reservation to be released, got %v", gate.released)
	}
}

func TestSpinErrors(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	sessionID := f.scan(t, "1.2.3.4")

	t.Run("session of another campaign", func(t *testing.T) {
		_, err := f.svc.Spin(ctx, uuid.New(), sessionID)
		assertKind(t, err, apperr.InvalidSession)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := f.svc.Spin(ctx, f.campaign.ID, uuid.New())
		assertKind(t, err, apperr.InvalidSession)
	})

	t.Run("campaign without rewards", func(t *testing.T) {
		empty := f.campaign
		empty.ID = uuid.New()
		f.store.PutCampaign(empty)
		res, err := f.svc.InitSession(ctx, InitSessionInput{CampaignID: empty.ID, Client: fraud.ClientContext{IP: "1.2.3.4"}})
		if err != nil {
			t.Fatalf("init session failed: %v", err)
		}

		_, err = f.svc.Spin(ctx, empty.ID, res.SessionID)
		assertKind(t, err, apperr.NoRewardsAvailable)

		session, _ := f.store.GetSession(ctx, res.SessionID, empty.ID)
		if session.HasSpun() {
			t.Error("expected no reward attached")
		}
	})
}

func TestSpinFallsBackToFullList(t *testing.T) {
	f := newFixture(t, 10)
	f.store.PutRewards(f.campaign.ID, []model.Reward{
		{ID: uuid.New(), Label: "Dessert", IsPrize: true, DisplayOrder: 0},
		{ID: uuid.New(), Label: "Coffee", IsPrize: true, DisplayOrder: 1},
	})

	for i := 0; i < 50; i++ {
		sessionID := f.scan(t, "1.2.3.4")
		res, err := f.svc.Spin(context.Background(), f.campaign.ID, sessionID)
		if err != nil {
			t.Fatalf("spin %d failed: %v", i, err)
		}
		if !res.IsPrize {
			t.Fatalf("spin %d returned a filler from a prize-only campaign", i)
		}
		f.clock.Advance(25 * time.Hour)
	}
}

func TestRateValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sessionID := f.scan(t, "1.2.3.4")

	tests := []struct {
		name     string
		in       RateInput
		wantKind apperr.Kind
	}{
		{name: "rating zero", in: RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 0}, wantKind: apperr.InvalidInput},
		{name: "rating six", in: RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 6}, wantKind: apperr.InvalidInput},
		{name: "feedback too long", in: RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 2, Feedback: strings.Repeat("é", 2001)}, wantKind: apperr.InvalidInput},
		{name: "wrong campaign", in: RateInput{CampaignID: uuid.New(), SessionID: sessionID, Rating: 3}, wantKind: apperr.InvalidSession},
		{name: "unknown session", in: RateInput{CampaignID: f.campaign.ID, SessionID: uuid.New(), Rating: 3}, wantKind: apperr.InvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Rate(ctx, tt.in)
			assertKind(t, err, tt.wantKind)
		})
	}

	session, _ := f.store.GetSession(ctx, sessionID, f.campaign.ID)
	if session.HasRated() {
		t.Fatal("rejected ratings must not be stored")
	}

	feedback := strings.Repeat("é", 2000)
	if _, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 2, Feedback: feedback}); err != nil {
		t.Fatalf("expected 2000-character feedback to be accepted, got %v", err)
	}
	_, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	assertKind(t, err, apperr.AlreadyRated)

	session, _ = f.store.GetSession(ctx, sessionID, f.campaign.ID)
	if *session.Rating != 2 || session.Feedback == nil || *session.Feedback != feedback {
		t.Errorf("expected first rating to stick, got %+v", session)
	}
}

func TestRateFillerIssuesNoCoupon(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	sessionID := f.scan(t, "1.2.3.4")

	spin, err := f.svc.Spin(ctx, f.campaign.ID, sessionID)
	if err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	if spin.IsPrize || spin.Index != 1 {
		t.Fatalf("expected the filler at index 1, got %+v", spin)
	}

	rated, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 3})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if rated.Coupon != nil {
		t.Errorf("expected no coupon for a filler, got %+v", rated.Coupon)
	}
	if _, err := f.store.GetCouponBySession(ctx, sessionID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected no stored coupon, got %v", err)
	}

	got := strings.Join(eventTypes(f.store.Events()), ",")
	if got != "scan,spin_completed,rating_submitted,reward_revealed" {
		t.Errorf("unexpected events %s", got)
	}
}

func TestRateWithoutSpin(t *testing.T) {
	f := newFixture(t, 100)
	sessionID := f.scan(t, "1.2.3.4")

	rated, err := f.svc.Rate(context.Background(), RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if rated.Coupon != nil {
		t.Error("an un-spun session must not receive a coupon")
	}
}

func scriptedCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}

func TestCouponCodeCollisionRetry(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	existing := playToCoupon(t, f, "9.9.9.9")

	f.svc.WithCodeGenerator(scriptedCodes(existing, existing, "fresh1"))

	sessionID := f.scan(t, "1.2.3.4")
	if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	rated, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 4})
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if rated.Coupon == nil || rated.Coupon.Code != "FRESH1" {
		t.Fatalf("expected regenerated code FRESH1, got %+v", rated.Coupon)
	}
}

func TestCouponCodeSpaceExhaustedRollsBack(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	existing := playToCoupon(t, f, "9.9.9.9")

	f.svc.WithCodeGenerator(scriptedCodes(existing))

	sessionID := f.scan(t, "1.2.3.4")
	if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	_, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	assertKind(t, err, apperr.Internal)
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Errorf("expected ErrCodeSpaceExhausted in chain, got %v", err)
	}

	session, _ := f.store.GetSession(ctx, sessionID, f.campaign.ID)
	if session.HasRated() {
		t.Error("expected the rating to be rolled back with the failed issuance")
	}

	f.svc.WithCodeGenerator(GenerateCode)
	rated, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5})
	if err != nil || rated.Coupon == nil {
		t.Fatalf("expected retry to issue a coupon, got %+v, %v", rated, err)
	}
}

func TestOutcomeShowReviewLink(t *testing.T) {
	tests := []struct {
		name           string
		winProbability int
		spin           bool
		rating         int
		wantShow       bool
	}{
		{name: "prize with low rating", winProbability: 100, spin: true, rating: 1, wantShow: true},
		{name: "filler with rating 4", winProbability: 0, spin: true, rating: 4, wantShow: true},
		{name: "filler with rating 3", winProbability: 0, spin: true, rating: 3, wantShow: false},
		{name: "filler not rated", winProbability: 0, spin: true, wantShow: false},
		{name: "not spun", winProbability: 0, wantShow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.winProbability)
			ctx := context.Background()
			sessionID := f.scan(t, "1.2.3.4")

			if tt.spin {
				if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
					t.Fatalf("spin failed: %v", err)
				}
			}
			if tt.rating > 0 {
				if _, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: tt.rating}); err != nil {
					t.Fatalf("rate failed: %v", err)
				}
			}

			out, err := f.svc.Outcome(ctx, f.campaign.ID, sessionID)
			if err != nil {
				t.Fatalf("outcome failed: %v", err)
			}
			if out.ShowReviewLink != tt.wantShow {
				t.Errorf("expected ShowReviewLink=%v, got %v", tt.wantShow, out.ShowReviewLink)
			}
			if out.ReviewURL != f.restaurant.ReviewURL {
				t.Errorf("expected review url %q, got %q", f.restaurant.ReviewURL, out.ReviewURL)
			}
			if (out.Reward != nil) != tt.spin {
				t.Errorf("expected reward presence %v, got %+v", tt.spin, out.Reward)
			}
		})
	}
}

func TestOutcomeDerivesExpiredStatus(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	sessionID := f.scan(t, "1.2.3.4")
	if _, err := f.svc.Spin(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("spin failed: %v", err)
	}
	if _, err := f.svc.Rate(ctx, RateInput{CampaignID: f.campaign.ID, SessionID: sessionID, Rating: 5}); err != nil {
		t.Fatalf("rate failed: %v", err)
	}

	out, err := f.svc.Outcome(ctx, f.campaign.ID, sessionID)
	if err != nil {
		t.Fatalf("outcome failed: %v", err)
	}
	if out.CouponStatus != model.CouponUnused {
		t.Errorf("expected unused, got %s", out.CouponStatus)
	}

	f.clock.Advance(11 * time.Minute)
	out, err = f.svc.Outcome(ctx, f.campaign.ID, sessionID)
	if err != nil {
		t.Fatalf("outcome failed: %v", err)
	}
	if out.CouponStatus != model.CouponExpired {
		t.Errorf("expected expired, got %s", out.CouponStatus)
	}

	_, err = f.svc.Outcome(ctx, uuid.New(), sessionID)
	assertKind(t, err, apperr.InvalidSession)
}

func TestResolveActiveCampaign(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	active, err := f.svc.ResolveActiveCampaign(ctx, f.restaurant.ID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if active.Campaign.ID != f.campaign.ID {
		t.Errorf("expected campaign %s, got %s", f.campaign.ID, active.Campaign.ID)
	}
	if len(active.Rewards) != 2 || active.Rewards[0].ID != f.prize.ID || active.Rewards[1].ID != f.filler.ID {
		t.Errorf("expected rewards in display order, got %+v", active.Rewards)
	}

	_, err = f.svc.ResolveActiveCampaign(ctx, uuid.New())
	assertKind(t, err, apperr.NotFound)

	closed := f.campaign
	closed.IsActive = false
	f.store.PutCampaign(closed)

	_, err = f.svc.ResolveActiveCampaign(ctx, f.restaurant.ID)
	assertKind(t, err, apperr.NoActiveCampaign)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Meta[ReviewURLKey] != f.restaurant.ReviewURL {
		t.Errorf("expected review url in error meta, got %+v", appErr)
	}
}

func TestTrackReviewClick(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	sessionID := f.scan(t, "1.2.3.4")

	if err := f.svc.TrackReviewClick(ctx, f.campaign.ID, sessionID); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	events := f.store.Events()
	if last := events[len(events)-1]; last.EventType != model.EventGoogleClicked {
		t.Errorf("expected google_clicked, got %s", last.EventType)
	}

	err := f.svc.TrackReviewClick(ctx, f.campaign.ID, uuid.New())
	assertKind(t, err, apperr.InvalidSession)
}
