package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// Demo fixture ids are stable so local tools can address them
var (
	DemoRestaurantID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("playengine:demo:restaurant"))
	DemoCampaignID   = uuid.NewSHA1(uuid.NameSpaceURL, []byte("playengine:demo:campaign"))
)

// DemoOwnerID owns the demo restaurant
const DemoOwnerID = "demo-owner"

// SeedDemo loads one restaurant with an active campaign of two prizes and
// two fillers
func SeedDemo(s *MemoryStore) {
	winProbability := 60

	s.PutRestaurant(model.Restaurant{
		ID:           DemoRestaurantID,
		OwnerID:      DemoOwnerID,
		Name:         "Demo Bistro",
		ReviewURL:    "https://search.google.com/local/writereview?placeid=demo",
		PrimaryColor: "#E4572E",
	})
	s.PutCampaign(model.Campaign{
		ID:             DemoCampaignID,
		RestaurantID:   DemoRestaurantID,
		Name:           "Demo wheel",
		IsActive:       true,
		WinProbability: &winProbability,
		CreatedAt:      time.Now(),
	})

	labels := []struct {
		label   string
		isPrize bool
		color   string
	}{
		{"Free coffee", true, "#F3A712"},
		{"Thank you!", false, "#29335C"},
		{"Free dessert", true, "#669BBC"},
		{"See you soon", false, "#A8C686"},
	}
	rewards := make([]model.Reward, 0, len(labels))
	for i, l := range labels {
		rewards = append(rewards, model.Reward{
			ID:           uuid.NewSHA1(DemoCampaignID, []byte(l.label)),
			Label:        l.label,
			IsPrize:      l.isPrize,
			DisplayOrder: i,
			Color:        l.color,
		})
	}
	s.PutRewards(DemoCampaignID, rewards)
}
