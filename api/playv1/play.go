// Package playv1 holds the wire messages of the playengine.play.v1 API.
// Messages travel as JSON through JSONCodec.
package playv1

import "time"

type InitSessionRequest struct {
	CampaignID string `json:"campaignId"`
}

type InitSessionResponse struct {
	SessionID  string    `json:"sessionId"`
	CampaignID string    `json:"campaignId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SpinRequest struct {
	CampaignID string `json:"campaignId"`
	SessionID  string `json:"sessionId"`
}

type SpinResponse struct {
	// RewardIndex is the wedge the wheel must stop on
	RewardIndex int32  `json:"rewardIndex"`
	RewardID    string `json:"rewardId"`
	RewardLabel string `json:"rewardLabel"`
	IsPrize     bool   `json:"isPrize"`
}

type RateRequest struct {
	CampaignID string `json:"campaignId"`
	SessionID  string `json:"sessionId"`
	Rating     int32  `json:"rating"`
	Feedback   string `json:"feedback,omitempty"`
}

type RateResponse struct {
	Coupon *Coupon `json:"coupon,omitempty"`
}

type Coupon struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type GetOutcomeRequest struct {
	CampaignID string `json:"campaignId"`
	SessionID  string `json:"sessionId"`
}

type GetOutcomeResponse struct {
	SessionID      string  `json:"sessionId"`
	Spun           bool    `json:"spun"`
	RewardLabel    string  `json:"rewardLabel,omitempty"`
	IsPrize        bool    `json:"isPrize"`
	Rating         int32   `json:"rating,omitempty"`
	Coupon         *Coupon `json:"coupon,omitempty"`
	ShowReviewLink bool    `json:"showReviewLink"`
	ReviewURL      string  `json:"reviewUrl,omitempty"`
}

type TrackReviewClickRequest struct {
	CampaignID string `json:"campaignId"`
	SessionID  string `json:"sessionId"`
}

type TrackReviewClickResponse struct{}

type ResolveCampaignRequest struct {
	RestaurantID string `json:"restaurantId"`
}

type ResolveCampaignResponse struct {
	CampaignID     string   `json:"campaignId"`
	CampaignName   string   `json:"campaignName"`
	RestaurantName string   `json:"restaurantName"`
	ReviewURL      string   `json:"reviewUrl,omitempty"`
	PrimaryColor   string   `json:"primaryColor,omitempty"`
	Rewards        []Reward `json:"rewards"`
}

type Reward struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

type RedeemCouponRequest struct {
	Code string `json:"code"`
}

type RedeemCouponResponse struct {
	RewardLabel string    `json:"rewardLabel"`
	Code        string    `json:"code"`
	SessionID   string    `json:"sessionId"`
	RedeemedAt  time.Time `json:"redeemedAt"`
}
