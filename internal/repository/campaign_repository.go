package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// CampaignRepository reads restaurant, campaign and reward configuration.
// The engine never writes these records.
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// GetRestaurant retrieves a restaurant by ID
func (r *CampaignRepository) GetRestaurant(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Restaurant, error) {
	query := `
		SELECT id, owner_id, name, review_url, primary_color
		FROM restaurants
		WHERE id = $1
	`

	var restaurant model.Restaurant
	if err := db.GetContext(ctx, &restaurant, query, id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}

	return &restaurant, nil
}

// GetRestaurantByOwner retrieves the restaurant owned by a dashboard user
func (r *CampaignRepository) GetRestaurantByOwner(ctx context.Context, db DBExecutor, ownerID string) (*model.Restaurant, error) {
	query := `
		SELECT id, owner_id, name, review_url, primary_color
		FROM restaurants
		WHERE owner_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`

	var restaurant model.Restaurant
	if err := db.GetContext(ctx, &restaurant, query, ownerID); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get restaurant by owner: %w", err)
	}

	return &restaurant, nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id uuid.UUID) (*model.Campaign, error) {
	query := `
		SELECT id, restaurant_id, name, is_active, win_probability, created_at
		FROM campaigns
		WHERE id = $1
	`

	var campaign model.Campaign
	if err := db.GetContext(ctx, &campaign, query, id); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// GetActiveCampaign retrieves the newest active campaign of a restaurant
func (r *CampaignRepository) GetActiveCampaign(ctx context.Context, db DBExecutor, restaurantID uuid.UUID) (*model.Campaign, error) {
	query := `
		SELECT id, restaurant_id, name, is_active, win_probability, created_at
		FROM campaigns
		WHERE restaurant_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`

	var campaign model.Campaign
	if err := db.GetContext(ctx, &campaign, query, restaurantID); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active campaign: %w", err)
	}

	return &campaign, nil
}

// ListRewards retrieves the rewards of a campaign in display order.
// The position in the returned slice is the wheel wedge index.
func (r *CampaignRepository) ListRewards(ctx context.Context, db DBExecutor, campaignID uuid.UUID) ([]model.Reward, error) {
	query := `
		SELECT id, campaign_id, label, is_prize, display_order, color
		FROM rewards
		WHERE campaign_id = $1
		ORDER BY display_order ASC, created_at ASC, id ASC
	`

	var rewards []model.Reward
	if err := db.SelectContext(ctx, &rewards, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	return rewards, nil
}

// GetReward retrieves one reward of a campaign
func (r *CampaignRepository) GetReward(ctx context.Context, db DBExecutor, campaignID, rewardID uuid.UUID) (*model.Reward, error) {
	query := `
		SELECT id, campaign_id, label, is_prize, display_order, color
		FROM rewards
		WHERE id = $1 AND campaign_id = $2
	`

	var reward model.Reward
	if err := db.GetContext(ctx, &reward, query, rewardID, campaignID); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}

	return &reward, nil
}
