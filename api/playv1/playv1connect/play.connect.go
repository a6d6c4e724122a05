// Package playv1connect wires the playengine.play.v1 services to connect.
package playv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	playv1 "github.com/avisly/playengine/api/playv1"
)

const (
	// PlayServiceName is the fully-qualified name of the PlayService service.
	PlayServiceName = "playengine.play.v1.PlayService"
	// StaffServiceName is the fully-qualified name of the StaffService service.
	StaffServiceName = "playengine.play.v1.StaffService"
)

const (
	PlayServiceInitSessionProcedure      = "/playengine.play.v1.PlayService/InitSession"
	PlayServiceSpinProcedure             = "/playengine.play.v1.PlayService/Spin"
	PlayServiceRateProcedure             = "/playengine.play.v1.PlayService/Rate"
	PlayServiceGetOutcomeProcedure       = "/playengine.play.v1.PlayService/GetOutcome"
	PlayServiceTrackReviewClickProcedure = "/playengine.play.v1.PlayService/TrackReviewClick"
	PlayServiceResolveCampaignProcedure  = "/playengine.play.v1.PlayService/ResolveCampaign"
	StaffServiceRedeemCouponProcedure    = "/playengine.play.v1.StaffService/RedeemCoupon"
)

// PlayServiceHandler is the player-facing API
type PlayServiceHandler interface {
	InitSession(context.Context, *connect.Request[playv1.InitSessionRequest]) (*connect.Response[playv1.InitSessionResponse], error)
	Spin(context.Context, *connect.Request[playv1.SpinRequest]) (*connect.Response[playv1.SpinResponse], error)
	Rate(context.Context, *connect.Request[playv1.RateRequest]) (*connect.Response[playv1.RateResponse], error)
	GetOutcome(context.Context, *connect.Request[playv1.GetOutcomeRequest]) (*connect.Response[playv1.GetOutcomeResponse], error)
	TrackReviewClick(context.Context, *connect.Request[playv1.TrackReviewClickRequest]) (*connect.Response[playv1.TrackReviewClickResponse], error)
	ResolveCampaign(context.Context, *connect.Request[playv1.ResolveCampaignRequest]) (*connect.Response[playv1.ResolveCampaignResponse], error)
}

// StaffServiceHandler is the restaurant staff API
type StaffServiceHandler interface {
	RedeemCoupon(context.Context, *connect.Request[playv1.RedeemCouponRequest]) (*connect.Response[playv1.RedeemCouponResponse], error)
}

func withJSON[T any](opts []T, codec T) []T {
	return append([]T{codec}, opts...)
}

// NewPlayServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewPlayServiceHandler(svc PlayServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withJSON[connect.HandlerOption](opts, connect.WithCodec(playv1.JSONCodec{}))

	handlers := map[string]http.Handler{
		PlayServiceInitSessionProcedure:      connect.NewUnaryHandler(PlayServiceInitSessionProcedure, svc.InitSession, opts...),
		PlayServiceSpinProcedure:             connect.NewUnaryHandler(PlayServiceSpinProcedure, svc.Spin, opts...),
		PlayServiceRateProcedure:             connect.NewUnaryHandler(PlayServiceRateProcedure, svc.Rate, opts...),
		PlayServiceGetOutcomeProcedure:       connect.NewUnaryHandler(PlayServiceGetOutcomeProcedure, svc.GetOutcome, opts...),
		PlayServiceTrackReviewClickProcedure: connect.NewUnaryHandler(PlayServiceTrackReviewClickProcedure, svc.TrackReviewClick, opts...),
		PlayServiceResolveCampaignProcedure:  connect.NewUnaryHandler(PlayServiceResolveCampaignProcedure, svc.ResolveCampaign, opts...),
	}
	return "/" + PlayServiceName + "/", route(handlers)
}

// NewStaffServiceHandler builds an HTTP handler from the service implementation.
func NewStaffServiceHandler(svc StaffServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withJSON[connect.HandlerOption](opts, connect.WithCodec(playv1.JSONCodec{}))

	handlers := map[string]http.Handler{
		StaffServiceRedeemCouponProcedure: connect.NewUnaryHandler(StaffServiceRedeemCouponProcedure, svc.RedeemCoupon, opts...),
	}
	return "/" + StaffServiceName + "/", route(handlers)
}

func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// PlayServiceClient is a client for the PlayService service.
type PlayServiceClient interface {
	InitSession(context.Context, *connect.Request[playv1.InitSessionRequest]) (*connect.Response[playv1.InitSessionResponse], error)
	Spin(context.Context, *connect.Request[playv1.SpinRequest]) (*connect.Response[playv1.SpinResponse], error)
	Rate(context.Context, *connect.Request[playv1.RateRequest]) (*connect.Response[playv1.RateResponse], error)
	GetOutcome(context.Context, *connect.Request[playv1.GetOutcomeRequest]) (*connect.Response[playv1.GetOutcomeResponse], error)
	TrackReviewClick(context.Context, *connect.Request[playv1.TrackReviewClickRequest]) (*connect.Response[playv1.TrackReviewClickResponse], error)
	ResolveCampaign(context.Context, *connect.Request[playv1.ResolveCampaignRequest]) (*connect.Response[playv1.ResolveCampaignResponse], error)
}

// NewPlayServiceClient constructs a client for the PlayService service.
func NewPlayServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) PlayServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = withJSON[connect.ClientOption](opts, connect.WithCodec(playv1.JSONCodec{}))
	return &playServiceClient{
		initSession:      connect.NewClient[playv1.InitSessionRequest, playv1.InitSessionResponse](httpClient, baseURL+PlayServiceInitSessionProcedure, opts...),
		spin:             connect.NewClient[playv1.SpinRequest, playv1.SpinResponse](httpClient, baseURL+PlayServiceSpinProcedure, opts...),
		rate:             connect.NewClient[playv1.RateRequest, playv1.RateResponse](httpClient, baseURL+PlayServiceRateProcedure, opts...),
		getOutcome:       connect.NewClient[playv1.GetOutcomeRequest, playv1.GetOutcomeResponse](httpClient, baseURL+PlayServiceGetOutcomeProcedure, opts...),
		trackReviewClick: connect.NewClient[playv1.TrackReviewClickRequest, playv1.TrackReviewClickResponse](httpClient, baseURL+PlayServiceTrackReviewClickProcedure, opts...),
		resolveCampaign:  connect.NewClient[playv1.ResolveCampaignRequest, playv1.ResolveCampaignResponse](httpClient, baseURL+PlayServiceResolveCampaignProcedure, opts...),
	}
}

type playServiceClient struct {
	initSession      *connect.Client[playv1.InitSessionRequest, playv1.InitSessionResponse]
	spin             *connect.Client[playv1.SpinRequest, playv1.SpinResponse]
	rate             *connect.Client[playv1.RateRequest, playv1.RateResponse]
	getOutcome       *connect.Client[playv1.GetOutcomeRequest, playv1.GetOutcomeResponse]
	trackReviewClick *connect.Client[playv1.TrackReviewClickRequest, playv1.TrackReviewClickResponse]
	resolveCampaign  *connect.Client[playv1.ResolveCampaignRequest, playv1.ResolveCampaignResponse]
}

func (c *playServiceClient) InitSession(ctx context.Context, req *connect.Request[playv1.InitSessionRequest]) (*connect.Response[playv1.InitSessionResponse], error) {
	return c.initSession.CallUnary(ctx, req)
}

func (c *playServiceClient) Spin(ctx context.Context, req *connect.Request[playv1.SpinRequest]) (*connect.Response[playv1.SpinResponse], error) {
	return c.spin.CallUnary(ctx, req)
}

func (c *playServiceClient) Rate(ctx context.Context, req *connect.Request[playv1.RateRequest]) (*connect.Response[playv1.RateResponse], error) {
	return c.rate.CallUnary(ctx, req)
}

func (c *playServiceClient) GetOutcome(ctx context.Context, req *connect.Request[playv1.GetOutcomeRequest]) (*connect.Response[playv1.GetOutcomeResponse], error) {
	return c.getOutcome.CallUnary(ctx, req)
}

func (c *playServiceClient) TrackReviewClick(ctx context.Context, req *connect.Request[playv1.TrackReviewClickRequest]) (*connect.Response[playv1.TrackReviewClickResponse], error) {
	return c.trackReviewClick.CallUnary(ctx, req)
}

func (c *playServiceClient) ResolveCampaign(ctx context.Context, req *connect.Request[playv1.ResolveCampaignRequest]) (*connect.Response[playv1.ResolveCampaignResponse], error) {
	return c.resolveCampaign.CallUnary(ctx, req)
}

// StaffServiceClient is a client for the StaffService service.
type StaffServiceClient interface {
	RedeemCoupon(context.Context, *connect.Request[playv1.RedeemCouponRequest]) (*connect.Response[playv1.RedeemCouponResponse], error)
}

// NewStaffServiceClient constructs a client for the StaffService service.
func NewStaffServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) StaffServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = withJSON[connect.ClientOption](opts, connect.WithCodec(playv1.JSONCodec{}))
	return &staffServiceClient{
		redeemCoupon: connect.NewClient[playv1.RedeemCouponRequest, playv1.RedeemCouponResponse](httpClient, baseURL+StaffServiceRedeemCouponProcedure, opts...),
	}
}

type staffServiceClient struct {
	redeemCoupon *connect.Client[playv1.RedeemCouponRequest, playv1.RedeemCouponResponse]
}

func (c *staffServiceClient) RedeemCoupon(ctx context.Context, req *connect.Request[playv1.RedeemCouponRequest]) (*connect.Response[playv1.RedeemCouponResponse], error) {
	return c.redeemCoupon.CallUnary(ctx, req)
}
