package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags a funnel step
type EventType string

const (
	EventScan            EventType = "scan"
	EventSpinCompleted   EventType = "spin_completed"
	EventRatingSubmitted EventType = "rating_submitted"
	EventRewardRevealed  EventType = "reward_revealed"
	EventCouponValidated EventType = "coupon_validated"
	EventGoogleClicked   EventType = "google_clicked"
)

// AnalyticsEvent is an append-only funnel record
type AnalyticsEvent struct {
	ID         uuid.UUID `db:"id" json:"id"`
	SessionID  uuid.UUID `db:"session_id" json:"session_id"`
	CampaignID uuid.UUID `db:"-" json:"campaign_id"`
	EventType  EventType `db:"event_type" json:"event_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewEvent builds an event with a fresh id
func NewEvent(sessionID, campaignID uuid.UUID, eventType EventType, at time.Time) AnalyticsEvent {
	return AnalyticsEvent{
		ID:         uuid.New(),
		SessionID:  sessionID,
		CampaignID: campaignID,
		EventType:  eventType,
		CreatedAt:  at,
	}
}
