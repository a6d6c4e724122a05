package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// MemoryStore is an in-process Store for local runs and tests. Every
// method holds one mutex, so conditional updates are atomic the same way
// the SQL ones are.
type MemoryStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	restaurants map[uuid.UUID]model.Restaurant
	campaigns   map[uuid.UUID]model.Campaign
	rewards     map[uuid.UUID][]model.Reward
	sessions    map[uuid.UUID]model.PlaySession
	coupons     map[uuid.UUID]model.Coupon
	codes       map[string]uuid.UUID
	events      []model.AnalyticsEvent
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		restaurants: map[uuid.UUID]model.Restaurant{},
		campaigns:   map[uuid.UUID]model.Campaign{},
		rewards:     map[uuid.UUID][]model.Reward{},
		sessions:    map[uuid.UUID]model.PlaySession{},
		coupons:     map[uuid.UUID]model.Coupon{},
		codes:       map[string]uuid.UUID{},
	}
}

var _ Store = (*MemoryStore)(nil)

// PutRestaurant stores restaurant configuration
func (s *MemoryStore) PutRestaurant(r model.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[r.ID] = r
}

// PutCampaign stores campaign configuration
func (s *MemoryStore) PutCampaign(c model.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// PutRewards replaces the rewards of a campaign
func (s *MemoryStore) PutRewards(campaignID uuid.UUID, rewards []model.Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]model.Reward, len(rewards))
	copy(list, rewards)
	for i := range list {
		list[i].CampaignID = campaignID
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].DisplayOrder < list[j].DisplayOrder })
	s.rewards[campaignID] = list
}

// PutCoupon stores a coupon as is, bypassing issuance
func (s *MemoryStore) PutCoupon(c model.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.ID] = c
	s.codes[c.Code] = c.ID
}

// Events returns a copy of the recorded analytics events
func (s *MemoryStore) Events() []model.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AnalyticsEvent, len(s.events))
	copy(out, s.events)
	return out
}

// GetRestaurant retrieves a restaurant by ID
func (s *MemoryStore) GetRestaurant(_ context.Context, id uuid.UUID) (*model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetRestaurantByOwner retrieves the restaurant of a dashboard user
func (s *MemoryStore) GetRestaurantByOwner(_ context.Context, ownerID string) (*model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.restaurants {
		if r.OwnerID == ownerID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// GetCampaign retrieves a campaign by ID
func (s *MemoryStore) GetCampaign(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// GetActiveCampaign retrieves the newest active campaign of a restaurant
func (s *MemoryStore) GetActiveCampaign(_ context.Context, restaurantID uuid.UUID) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Campaign
	for _, c := range s.campaigns {
		if c.RestaurantID != restaurantID || !c.IsActive {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ListRewards retrieves the rewards of a campaign in display order
func (s *MemoryStore) ListRewards(_ context.Context, campaignID uuid.UUID) ([]model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.rewards[campaignID]
	out := make([]model.Reward, len(list))
	copy(out, list)
	return out, nil
}

// GetReward retrieves one reward of a campaign
func (s *MemoryStore) GetReward(_ context.Context, campaignID, rewardID uuid.UUID) (*model.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rewards[campaignID] {
		if r.ID == rewardID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// CreateSession inserts a new session
func (s *MemoryStore) CreateSession(_ context.Context, session *model.PlaySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return ErrConflict
	}
	s.sessions[session.ID] = *session
	return nil
}

// GetSession retrieves a session scoped to its campaign
func (s *MemoryStore) GetSession(_ context.Context, sessionID, campaignID uuid.UUID) (*model.PlaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.CampaignID != campaignID {
		return nil, ErrNotFound
	}
	return &session, nil
}

// CountRecentSessions counts sessions from an IP after since
func (s *MemoryStore) CountRecentSessions(_ context.Context, campaignID uuid.UUID, ip string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		if session.CampaignID == campaignID && session.IPAddress == ip && session.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// AttachReward conditionally assigns the reward
func (s *MemoryStore) AttachReward(_ context.Context, sessionID, campaignID, rewardID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.CampaignID != campaignID || session.RewardID != nil {
		return ErrNotUpdated
	}
	session.RewardID = &rewardID
	s.sessions[sessionID] = session
	return nil
}

// AttachRating conditionally assigns the rating
func (s *MemoryStore) AttachRating(_ context.Context, sessionID, campaignID uuid.UUID, rating int, feedback *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || session.CampaignID != campaignID || session.Rating != nil {
		return ErrNotUpdated
	}
	session.Rating = &rating
	session.Feedback = feedback
	s.sessions[sessionID] = session
	return nil
}

// CreateCoupon inserts a coupon
func (s *MemoryStore) CreateCoupon(_ context.Context, coupon *model.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[coupon.Code]; taken {
		return ErrDuplicateCode
	}
	for _, c := range s.coupons {
		if c.SessionID == coupon.SessionID {
			return ErrConflict
		}
	}
	s.coupons[coupon.ID] = *coupon
	s.codes[coupon.Code] = coupon.ID
	return nil
}

// GetCouponByCode retrieves a coupon with its redemption context
func (s *MemoryStore) GetCouponByCode(_ context.Context, code string) (*model.CouponDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	coupon := s.coupons[id]
	session, ok := s.sessions[coupon.SessionID]
	if !ok {
		return nil, ErrNotFound
	}
	campaign, ok := s.campaigns[session.CampaignID]
	if !ok {
		return nil, ErrNotFound
	}

	details := &model.CouponDetails{
		Coupon:       coupon,
		CampaignID:   campaign.ID,
		RestaurantID: campaign.RestaurantID,
	}
	if session.RewardID != nil {
		for _, r := range s.rewards[campaign.ID] {
			if r.ID == *session.RewardID {
				details.RewardLabel = r.Label
			}
		}
	}
	return details, nil
}

// GetCouponBySession retrieves the coupon of a session
func (s *MemoryStore) GetCouponBySession(_ context.Context, sessionID uuid.UUID) (*model.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.SessionID == sessionID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// MarkCouponUsed conditionally consumes a coupon
func (s *MemoryStore) MarkCouponUsed(_ context.Context, couponID uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon, ok := s.coupons[couponID]
	if !ok || coupon.Status != model.CouponUnused {
		return ErrNotUpdated
	}
	coupon.Status = model.CouponUsed
	coupon.UsedAt = &usedAt
	s.coupons[couponID] = coupon
	return nil
}

// InsertEvents appends analytics events
func (s *MemoryStore) InsertEvents(_ context.Context, events ...model.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// WithTx serializes transactions and undoes their writes when fn fails.
// Writes made outside a transaction are not isolated from it.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{MemoryStore: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// memoryTx records an undo action for every successful write
type memoryTx struct {
	*MemoryStore
	undo []func()
}

func (t *memoryTx) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memoryTx) CreateSession(ctx context.Context, session *model.PlaySession) error {
	if err := t.MemoryStore.CreateSession(ctx, session); err != nil {
		return err
	}
	id := session.ID
	t.undo = append(t.undo, func() { delete(t.sessions, id) })
	return nil
}

func (t *memoryTx) AttachReward(ctx context.Context, sessionID, campaignID, rewardID uuid.UUID) error {
	if err := t.MemoryStore.AttachReward(ctx, sessionID, campaignID, rewardID); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		session := t.sessions[sessionID]
		session.RewardID = nil
		t.sessions[sessionID] = session
	})
	return nil
}

func (t *memoryTx) AttachRating(ctx context.Context, sessionID, campaignID uuid.UUID, rating int, feedback *string) error {
	if err := t.MemoryStore.AttachRating(ctx, sessionID, campaignID, rating, feedback); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		session := t.sessions[sessionID]
		session.Rating = nil
		session.Feedback = nil
		t.sessions[sessionID] = session
	})
	return nil
}

func (t *memoryTx) CreateCoupon(ctx context.Context, coupon *model.Coupon) error {
	if err := t.MemoryStore.CreateCoupon(ctx, coupon); err != nil {
		return err
	}
	id, code := coupon.ID, coupon.Code
	t.undo = append(t.undo, func() {
		delete(t.coupons, id)
		delete(t.codes, code)
	})
	return nil
}

func (t *memoryTx) MarkCouponUsed(ctx context.Context, couponID uuid.UUID, usedAt time.Time) error {
	if err := t.MemoryStore.MarkCouponUsed(ctx, couponID, usedAt); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		coupon := t.coupons[couponID]
		coupon.Status = model.CouponUnused
		coupon.UsedAt = nil
		t.coupons[couponID] = coupon
	})
	return nil
}

func (t *memoryTx) InsertEvents(ctx context.Context, events ...model.AnalyticsEvent) error {
	if err := t.MemoryStore.InsertEvents(ctx, events...); err != nil {
		return err
	}
	ids := make(map[uuid.UUID]bool, len(events))
	for _, e := range events {
		ids[e.ID] = true
	}
	t.undo = append(t.undo, func() {
		kept := t.events[:0]
		for _, e := range t.events {
			if !ids[e.ID] {
				kept = append(kept, e)
			}
		}
		t.events = kept
	})
	return nil
}

func (t *memoryTx) WithTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}
