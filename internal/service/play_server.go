package service

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	playv1 "github.com/avisly/playengine/api/playv1"
	"github.com/avisly/playengine/api/playv1/playv1connect"
	"github.com/avisly/playengine/internal/apperr"
	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/fraud"
	"github.com/avisly/playengine/internal/model"
)

// PlayServer exposes PlayService over connect
type PlayServer struct {
	play   *PlayService
	logger zerolog.Logger
}

var (
	_ playv1connect.PlayServiceHandler  = (*PlayServer)(nil)
	_ playv1connect.StaffServiceHandler = (*PlayServer)(nil)
)

// NewPlayServer creates a new PlayServer instance
func NewPlayServer(play *PlayService, logger zerolog.Logger) *PlayServer {
	return &PlayServer{
		play:   play,
		logger: logger.With().Str("component", "play-server").Logger(),
	}
}

// toConnect logs internal faults and converts err for the wire
func (s *PlayServer) toConnect(procedure string, err error) error {
	if apperr.IsKind(err, apperr.Internal) {
		s.logger.Error().Err(err).Str("procedure", procedure).Msg("Internal error")
	}
	return apperr.ToConnect(err)
}

func parseID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperr.Newf(apperr.InvalidInput, "Invalid %s", field)
	}
	return id, nil
}

// parseSessionRef parses a campaign/session pair. A malformed id refers to
// no session.
func parseSessionRef(campaignID, sessionID string) (uuid.UUID, uuid.UUID, error) {
	c, err := uuid.Parse(campaignID)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.New(apperr.InvalidSession)
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.New(apperr.InvalidSession)
	}
	return c, sid, nil
}

// InitSession starts a play session for the scanning client
func (s *PlayServer) InitSession(
	ctx context.Context,
	req *connect.Request[playv1.InitSessionRequest],
) (*connect.Response[playv1.InitSessionResponse], error) {
	campaignID, err := uuid.Parse(req.Msg.CampaignID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, apperr.New(apperr.NotFound))
	}

	client := fraud.ClientContext{IP: fraud.ClientIP(req.Header(), req.Peer().Addr)}
	if identity, ok := auth.FromContext(ctx); ok {
		client.Caller = identity
	}

	result, err := s.play.InitSession(ctx, InitSessionInput{CampaignID: campaignID, Client: client})
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	return connect.NewResponse(&playv1.InitSessionResponse{
		SessionID:  result.SessionID.String(),
		CampaignID: result.CampaignID.String(),
		CreatedAt:  result.CreatedAt,
	}), nil
}

// Spin draws the session's reward
func (s *PlayServer) Spin(
	ctx context.Context,
	req *connect.Request[playv1.SpinRequest],
) (*connect.Response[playv1.SpinResponse], error) {
	campaignID, sessionID, err := parseSessionRef(req.Msg.CampaignID, req.Msg.SessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	result, err := s.play.Spin(ctx, campaignID, sessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	return connect.NewResponse(&playv1.SpinResponse{
		RewardIndex: int32(result.Index),
		RewardID:    result.RewardID.String(),
		RewardLabel: result.Label,
		IsPrize:     result.IsPrize,
	}), nil
}

// Rate submits the session's rating
func (s *PlayServer) Rate(
	ctx context.Context,
	req *connect.Request[playv1.RateRequest],
) (*connect.Response[playv1.RateResponse], error) {
	campaignID, sessionID, err := parseSessionRef(req.Msg.CampaignID, req.Msg.SessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	result, err := s.play.Rate(ctx, RateInput{
		CampaignID: campaignID,
		SessionID:  sessionID,
		Rating:     int(req.Msg.Rating),
		Feedback:   req.Msg.Feedback,
	})
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	res := &playv1.RateResponse{}
	if result.Coupon != nil {
		res.Coupon = toCoupon(result.Coupon, result.Coupon.Status)
	}
	return connect.NewResponse(res), nil
}

// GetOutcome reads the reveal screen of a session
func (s *PlayServer) GetOutcome(
	ctx context.Context,
	req *connect.Request[playv1.GetOutcomeRequest],
) (*connect.Response[playv1.GetOutcomeResponse], error) {
	campaignID, sessionID, err := parseSessionRef(req.Msg.CampaignID, req.Msg.SessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	outcome, err := s.play.Outcome(ctx, campaignID, sessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	res := &playv1.GetOutcomeResponse{
		SessionID:      outcome.SessionID.String(),
		Spun:           outcome.Reward != nil,
		ShowReviewLink: outcome.ShowReviewLink,
		ReviewURL:      outcome.ReviewURL,
	}
	if outcome.Reward != nil {
		res.RewardLabel = outcome.Reward.Label
		res.IsPrize = outcome.Reward.IsPrize
	}
	if outcome.Rating != nil {
		res.Rating = int32(*outcome.Rating)
	}
	if outcome.Coupon != nil {
		res.Coupon = toCoupon(outcome.Coupon, outcome.CouponStatus)
	}
	return connect.NewResponse(res), nil
}

// TrackReviewClick records a click on the review link
func (s *PlayServer) TrackReviewClick(
	ctx context.Context,
	req *connect.Request[playv1.TrackReviewClickRequest],
) (*connect.Response[playv1.TrackReviewClickResponse], error) {
	campaignID, sessionID, err := parseSessionRef(req.Msg.CampaignID, req.Msg.SessionID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	if err := s.play.TrackReviewClick(ctx, campaignID, sessionID); err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}
	return connect.NewResponse(&playv1.TrackReviewClickResponse{}), nil
}

// ResolveCampaign maps a restaurant QR code to its active campaign
func (s *PlayServer) ResolveCampaign(
	ctx context.Context,
	req *connect.Request[playv1.ResolveCampaignRequest],
) (*connect.Response[playv1.ResolveCampaignResponse], error) {
	restaurantID, err := parseID(req.Msg.RestaurantID, "restaurant id")
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	active, err := s.play.ResolveActiveCampaign(ctx, restaurantID)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	rewards := make([]playv1.Reward, 0, len(active.Rewards))
	for _, r := range active.Rewards {
		rewards = append(rewards, playv1.Reward{
			ID:    r.ID.String(),
			Label: r.Label,
			Color: r.Color,
		})
	}

	return connect.NewResponse(&playv1.ResolveCampaignResponse{
		CampaignID:     active.Campaign.ID.String(),
		CampaignName:   active.Campaign.Name,
		RestaurantName: active.Restaurant.Name,
		ReviewURL:      active.Restaurant.ReviewURL,
		PrimaryColor:   active.Restaurant.PrimaryColor,
		Rewards:        rewards,
	}), nil
}

// RedeemCoupon consumes a coupon for the authenticated staff member
func (s *PlayServer) RedeemCoupon(
	ctx context.Context,
	req *connect.Request[playv1.RedeemCouponRequest],
) (*connect.Response[playv1.RedeemCouponResponse], error) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return nil, s.toConnect(req.Spec().Procedure, apperr.New(apperr.Unauthenticated))
	}

	result, err := s.play.Redeem(ctx, req.Msg.Code, identity)
	if err != nil {
		return nil, s.toConnect(req.Spec().Procedure, err)
	}

	return connect.NewResponse(&playv1.RedeemCouponResponse{
		RewardLabel: result.RewardLabel,
		Code:        result.Code,
		SessionID:   result.SessionID.String(),
		RedeemedAt:  result.RedeemedAt,
	}), nil
}

func toCoupon(c *model.Coupon, status model.CouponStatus) *playv1.Coupon {
	return &playv1.Coupon{
		Code:      c.Code,
		Status:    string(status),
		ExpiresAt: c.ExpiresAt.UTC().Truncate(time.Millisecond),
	}
}
