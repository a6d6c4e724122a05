package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/analytics"
	"github.com/avisly/playengine/internal/apperr"
	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/fraud"
	"github.com/avisly/playengine/internal/metrics"
	"github.com/avisly/playengine/internal/model"
	"github.com/avisly/playengine/internal/repository"
	"github.com/avisly/playengine/internal/selector"
)

// Options holds play engine policy
type Options struct {
	CouponTTL            time.Duration
	CodeAttempts         int
	MaxFeedbackLength    int
	PositiveRatingCutoff int
}

// DefaultOptions returns the reference policy
func DefaultOptions() Options {
	return Options{
		CouponTTL:            10 * time.Minute,
		CodeAttempts:         8,
		MaxFeedbackLength:    2000,
		PositiveRatingCutoff: 4,
	}
}

// PlayService runs the scan, spin, rate and redeem sequence
type PlayService struct {
	store   repository.Store
	gate    fraud.Gate
	emitter analytics.Emitter
	source  selector.Source
	issuer  *CouponIssuer
	now     func() time.Time
	opts    Options
	logger  zerolog.Logger
}

// NewPlayService creates a new PlayService instance
func NewPlayService(store repository.Store, gate fraud.Gate, emitter analytics.Emitter, opts Options, logger zerolog.Logger) *PlayService {
	logger = logger.With().Str("component", "play-service").Logger()
	return &PlayService{
		store:   store,
		gate:    gate,
		emitter: emitter,
		source:  selector.NewSource(),
		issuer:  NewCouponIssuer(GenerateCode, opts.CouponTTL, opts.CodeAttempts, logger),
		now:     time.Now,
		opts:    opts,
		logger:  logger,
	}
}

// WithClock replaces the clock used for timestamps and expiry checks
func (s *PlayService) WithClock(now func() time.Time) *PlayService {
	s.now = now
	return s
}

// WithSource replaces the random source of the reward draw
func (s *PlayService) WithSource(src selector.Source) *PlayService {
	s.source = src
	return s
}

// WithCodeGenerator replaces the coupon code generator
func (s *PlayService) WithCodeGenerator(generate CodeGenerator) *PlayService {
	s.issuer = NewCouponIssuer(generate, s.opts.CouponTTL, s.opts.CodeAttempts, s.logger)
	return s
}

// observe records the duration of an operation by outcome kind
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = strings.ToLower(string(apperr.KindOf(err)))
	}
	metrics.RecordOperationDuration(operation, status, time.Since(start).Seconds())
}

// InitSessionInput identifies a scan
type InitSessionInput struct {
	CampaignID uuid.UUID
	Client     fraud.ClientContext
}

// InitSessionResult is the created session
type InitSessionResult struct {
	SessionID  uuid.UUID
	CampaignID uuid.UUID
	CreatedAt  time.Time
}

// InitSession creates a play session when the fraud gate admits the client
func (s *PlayService) InitSession(ctx context.Context, in InitSessionInput) (_ *InitSessionResult, err error) {
	defer func(start time.Time) { observe("init_session", start, err) }(time.Now())
	in.Client.IP = fraud.CanonicalIP(in.Client.IP)

	campaign, err := s.store.GetCampaign(ctx, in.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound)
		}
		return nil, apperr.Internalf(err, "failed to get campaign")
	}
	if !campaign.IsActive {
		return nil, apperr.New(apperr.CampaignInactive)
	}

	allowed, err := s.gate.MayCreateSession(ctx, campaign.ID, in.Client)
	if err != nil {
		return nil, apperr.Internalf(err, "fraud gate failed")
	}
	if !allowed {
		s.logger.Info().
			Str("campaign_id", campaign.ID.String()).
			Str("ip", in.Client.IP).
			Msg("Session refused by fraud gate")
		return nil, apperr.New(apperr.FraudLimit)
	}

	session := &model.PlaySession{
		ID:         uuid.New(),
		CampaignID: campaign.ID,
		IPAddress:  in.Client.IP,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		s.releaseAdmission(ctx, campaign.ID, in.Client)
		return nil, apperr.Internalf(err, "failed to create session")
	}

	s.emitter.Emit(ctx, model.NewEvent(session.ID, campaign.ID, model.EventScan, session.CreatedAt))

	return &InitSessionResult{
		SessionID:  session.ID,
		CampaignID: campaign.ID,
		CreatedAt:  session.CreatedAt,
	}, nil
}

func (s *PlayService) releaseAdmission(ctx context.Context, campaignID uuid.UUID, client fraud.ClientContext) {
	releaser, ok := s.gate.(fraud.Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(context.WithoutCancel(ctx), campaignID, client); err != nil {
		s.logger.Warn().
			Err(err).
			Str("campaign_id", campaignID.String()).
			Str("ip", client.IP).
			Msg("Failed to release fraud reservation")
	}
}

// SpinResult is the drawn reward
type SpinResult struct {
	// Index is the position of the reward in the campaign's display order
	Index    int
	RewardID uuid.UUID
	Label    string
	IsPrize  bool
}

// Spin draws the reward of a session exactly once
func (s *PlayService) Spin(ctx context.Context, campaignID, sessionID uuid.UUID) (_ *SpinResult, err error) {
	defer func(start time.Time) { observe("spin", start, err) }(time.Now())

	session, err := s.getSession(ctx, s.store, campaignID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HasSpun() {
		return nil, apperr.New(apperr.AlreadyPlayed)
	}

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.InvalidSession)
		}
		return nil, apperr.Internalf(err, "failed to get campaign")
	}

	rewards, err := s.store.ListRewards(ctx, campaignID)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to list rewards")
	}

	result, err := selector.Pick(campaign.EffectiveWinProbability(), rewards, s.source)
	if err != nil {
		if errors.Is(err, selector.ErrNoRewards) {
			return nil, apperr.New(apperr.NoRewardsAvailable)
		}
		return nil, apperr.Internalf(err, "failed to pick reward")
	}

	if err := s.store.AttachReward(ctx, sessionID, campaignID, result.Reward.ID); err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			return nil, apperr.New(apperr.AlreadyPlayed)
		}
		return nil, apperr.Internalf(err, "failed to attach reward")
	}

	metrics.RecordSpinOutcome(result.Outcome())
	s.emitter.Emit(ctx, model.NewEvent(sessionID, campaignID, model.EventSpinCompleted, s.now()))

	return &SpinResult{
		Index:    result.Index,
		RewardID: result.Reward.ID,
		Label:    result.Reward.Label,
		IsPrize:  result.Reward.IsPrize,
	}, nil
}

// RateInput is a rating submission
type RateInput struct {
	CampaignID uuid.UUID
	SessionID  uuid.UUID
	Rating     int
	Feedback   string
}

// RateResult carries the coupon issued for a winning session
type RateResult struct {
	Coupon *model.Coupon
}

// Rate attaches a rating and issues the coupon of a prize in one transaction
func (s *PlayService) Rate(ctx context.Context, in RateInput) (_ *RateResult, err error) {
	defer func(start time.Time) { observe("rate", start, err) }(time.Now())

	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Newf(apperr.InvalidInput, "Rating must be between 1 and 5")
	}
	var feedback *string
	if text := strings.TrimSpace(in.Feedback); text != "" {
		if utf8.RuneCountInString(text) > s.opts.MaxFeedbackLength {
			return nil, apperr.Newf(apperr.InvalidInput, "Feedback must be at most %d characters", s.opts.MaxFeedbackLength)
		}
		feedback = &text
	}

	now := s.now()
	result := &RateResult{}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		session, err := s.getSession(ctx, tx, in.CampaignID, in.SessionID)
		if err != nil {
			return err
		}
		if session.HasRated() {
			return apperr.New(apperr.AlreadyRated)
		}

		if err := tx.AttachRating(ctx, in.SessionID, in.CampaignID, in.Rating, feedback); err != nil {
			if errors.Is(err, repository.ErrNotUpdated) {
				return apperr.New(apperr.AlreadyRated)
			}
			return apperr.Internalf(err, "failed to attach rating")
		}

		if !session.HasSpun() {
			return nil
		}
		reward, err := tx.GetReward(ctx, in.CampaignID, *session.RewardID)
		if err != nil {
			return apperr.Internalf(err, "failed to get reward %s", session.RewardID)
		}

		coupon, err := s.issuer.IssueIfPrize(ctx, tx, session, reward, now)
		if err != nil {
			return apperr.Internalf(err, "failed to issue coupon")
		}
		result.Coupon = coupon
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.Internal) {
			s.logger.Error().
				Err(err).
				Str("session_id", in.SessionID.String()).
				Str("campaign_id", in.CampaignID.String()).
				Msg("Rating failed")
		}
		return nil, err
	}

	s.emitter.Emit(ctx,
		model.NewEvent(in.SessionID, in.CampaignID, model.EventRatingSubmitted, now),
		model.NewEvent(in.SessionID, in.CampaignID, model.EventRewardRevealed, now),
	)

	return result, nil
}

// RedeemResult is shown to staff after a successful redemption
type RedeemResult struct {
	RewardLabel string
	Code        string
	SessionID   uuid.UUID
	RedeemedAt  time.Time
}

// Redeem consumes a coupon at most once, within the caller's restaurant
func (s *PlayService) Redeem(ctx context.Context, code string, caller *auth.Identity) (_ *RedeemResult, err error) {
	defer func(start time.Time) {
		observe("redeem", start, err)
		result := "success"
		if err != nil {
			result = strings.ToLower(string(apperr.KindOf(err)))
		}
		metrics.RecordRedemption(result)
	}(time.Now())

	if caller == nil {
		return nil, apperr.New(apperr.Unauthenticated)
	}

	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.New(apperr.InvalidCode)
	}

	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.InvalidCode)
		}
		return nil, apperr.Internalf(err, "failed to get coupon")
	}

	restaurantID, err := s.callerRestaurant(ctx, caller)
	if err != nil {
		return nil, err
	}
	if coupon.RestaurantID != restaurantID {
		s.logger.Warn().
			Str("coupon_id", coupon.ID.String()).
			Str("caller_restaurant_id", restaurantID.String()).
			Str("user_id", caller.UserID).
			Msg("Cross-restaurant redemption refused")
		return nil, apperr.New(apperr.Forbidden)
	}
	if coupon.Status == model.CouponUsed {
		return nil, apperr.New(apperr.AlreadyUsed)
	}

	now := s.now()
	if coupon.IsExpiredAt(now) {
		return nil, apperr.New(apperr.Expired)
	}

	if err := s.store.MarkCouponUsed(ctx, coupon.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			return nil, apperr.New(apperr.AlreadyUsed)
		}
		return nil, apperr.Internalf(err, "failed to mark coupon used")
	}

	s.emitter.Emit(ctx, model.NewEvent(coupon.SessionID, coupon.CampaignID, model.EventCouponValidated, now))

	return &RedeemResult{
		RewardLabel: coupon.RewardLabel,
		Code:        coupon.Code,
		SessionID:   coupon.SessionID,
		RedeemedAt:  now,
	}, nil
}

// callerRestaurant resolves the restaurant a staff member acts for: the
// token's restaurant claim, else the restaurant the user owns
func (s *PlayService) callerRestaurant(ctx context.Context, caller *auth.Identity) (uuid.UUID, error) {
	if caller.HasRestaurant() {
		return caller.RestaurantID, nil
	}
	if caller.UserID == "" {
		return uuid.Nil, apperr.New(apperr.Forbidden)
	}

	restaurant, err := s.store.GetRestaurantByOwner(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, apperr.New(apperr.Forbidden)
		}
		return uuid.Nil, apperr.Internalf(err, "failed to get restaurant of user %s", caller.UserID)
	}
	return restaurant.ID, nil
}

// ActiveCampaign is what a scanned restaurant QR code resolves to
type ActiveCampaign struct {
	Restaurant model.Restaurant
	Campaign   model.Campaign
	Rewards    []model.Reward
}

// ReviewURLKey is the error meta key holding the restaurant's review link
const ReviewURLKey = "review_url"

// ResolveActiveCampaign finds the newest active campaign of a restaurant
func (s *PlayService) ResolveActiveCampaign(ctx context.Context, restaurantID uuid.UUID) (_ *ActiveCampaign, err error) {
	defer func(start time.Time) { observe("resolve_campaign", start, err) }(time.Now())

	restaurant, err := s.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound)
		}
		return nil, apperr.Internalf(err, "failed to get restaurant")
	}

	campaign, err := s.store.GetActiveCampaign(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.NoActiveCampaign).WithMeta(ReviewURLKey, restaurant.ReviewURL)
		}
		return nil, apperr.Internalf(err, "failed to get active campaign")
	}

	rewards, err := s.store.ListRewards(ctx, campaign.ID)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to list rewards")
	}

	return &ActiveCampaign{
		Restaurant: *restaurant,
		Campaign:   *campaign,
		Rewards:    rewards,
	}, nil
}

// Outcome is the reveal screen of a session
type Outcome struct {
	SessionID      uuid.UUID
	Reward         *model.Reward
	Rating         *int
	Coupon         *model.Coupon
	CouponStatus   model.CouponStatus
	ShowReviewLink bool
	ReviewURL      string
}

// Outcome reads back a session's reward, rating and coupon
func (s *PlayService) Outcome(ctx context.Context, campaignID, sessionID uuid.UUID) (_ *Outcome, err error) {
	defer func(start time.Time) { observe("outcome", start, err) }(time.Now())

	session, err := s.getSession(ctx, s.store, campaignID, sessionID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to get campaign")
	}
	restaurant, err := s.store.GetRestaurant(ctx, campaign.RestaurantID)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to get restaurant")
	}

	out := &Outcome{
		SessionID: session.ID,
		Rating:    session.Rating,
		ReviewURL: restaurant.ReviewURL,
	}

	if session.HasSpun() {
		reward, err := s.store.GetReward(ctx, campaignID, *session.RewardID)
		if err != nil {
			return nil, apperr.Internalf(err, "failed to get reward")
		}
		out.Reward = reward
	}

	coupon, err := s.store.GetCouponBySession(ctx, session.ID)
	switch {
	case err == nil:
		out.Coupon = coupon
		out.CouponStatus = coupon.StatusAt(s.now())
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internalf(err, "failed to get coupon")
	}

	out.ShowReviewLink = s.showReviewLink(out.Reward, session.Rating)
	return out, nil
}

// showReviewLink offers the public review to winners and happy customers
func (s *PlayService) showReviewLink(reward *model.Reward, rating *int) bool {
	if reward != nil && reward.IsPrize {
		return true
	}
	return rating != nil && *rating >= s.opts.PositiveRatingCutoff
}

// TrackReviewClick records that the player followed the review link
func (s *PlayService) TrackReviewClick(ctx context.Context, campaignID, sessionID uuid.UUID) (err error) {
	defer func(start time.Time) { observe("track_review_click", start, err) }(time.Now())

	if _, err := s.getSession(ctx, s.store, campaignID, sessionID); err != nil {
		return err
	}

	s.emitter.Emit(ctx, model.NewEvent(sessionID, campaignID, model.EventGoogleClicked, s.now()))
	return nil
}

// getSession loads a session that must belong to campaignID
func (s *PlayService) getSession(ctx context.Context, store repository.Store, campaignID, sessionID uuid.UUID) (*model.PlaySession, error) {
	session, err := store.GetSession(ctx, sessionID, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.InvalidSession)
		}
		return nil, apperr.Internalf(err, "failed to get session")
	}
	return session, nil
}
