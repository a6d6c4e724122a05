package model

import (
	"time"

	"github.com/google/uuid"
)

// PlaySession is one customer's pass through scan, spin and rate.
// RewardID and Rating are each set exactly once.
type PlaySession struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CampaignID uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	RewardID   *uuid.UUID `db:"reward_id" json:"reward_id,omitempty"`
	Rating     *int       `db:"rating" json:"rating,omitempty"`
	Feedback   *string    `db:"feedback" json:"feedback,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// HasSpun reports whether a reward has been assigned
func (s *PlaySession) HasSpun() bool {
	return s.RewardID != nil
}

// HasRated reports whether a rating has been attached
func (s *PlaySession) HasRated() bool {
	return s.Rating != nil
}
