package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultWinProbability is used when a campaign has no win probability set
const DefaultWinProbability = 50

// Restaurant owns campaigns. Only the fields the engine reads are mapped.
type Restaurant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	Name         string    `db:"name" json:"name"`
	ReviewURL    string    `db:"review_url" json:"review_url"`
	PrimaryColor string    `db:"primary_color" json:"primary_color"`
}

// Campaign represents a prize wheel configuration of a restaurant
type Campaign struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RestaurantID   uuid.UUID `db:"restaurant_id" json:"restaurant_id"`
	Name           string    `db:"name" json:"name"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	WinProbability *int      `db:"win_probability" json:"win_probability,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EffectiveWinProbability returns the win probability with the default applied
func (c *Campaign) EffectiveWinProbability() int {
	if c.WinProbability == nil {
		return DefaultWinProbability
	}
	return *c.WinProbability
}

// Reward is one wedge of the wheel. Rewards are read-only to the engine.
type Reward struct {
	ID           uuid.UUID `db:"id" json:"id"`
	CampaignID   uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Label        string    `db:"label" json:"label"`
	IsPrize      bool      `db:"is_prize" json:"is_prize"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	Color        string    `db:"color" json:"color"`
}
