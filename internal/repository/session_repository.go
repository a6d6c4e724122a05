package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avisly/playengine/internal/model"
)

// SessionRepository handles play session data operations
type SessionRepository struct{}

// NewSessionRepository creates a new session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

// CreateSession inserts a new session with no reward and no rating
func (r *SessionRepository) CreateSession(ctx context.Context, db DBExecutor, session *model.PlaySession) error {
	query := `
		INSERT INTO sessions (id, campaign_id, ip_address, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := db.ExecContext(ctx, query,
		session.ID, session.CampaignID, session.IPAddress, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session scoped to its campaign
func (r *SessionRepository) GetSession(ctx context.Context, db DBExecutor, sessionID, campaignID uuid.UUID) (*model.PlaySession, error) {
	query := `
		SELECT id, campaign_id, ip_address, reward_id, rating, feedback, created_at
		FROM sessions
		WHERE id = $1 AND campaign_id = $2
	`

	var session model.PlaySession
	if err := db.GetContext(ctx, &session, query, sessionID, campaignID); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// CountRecentSessions counts sessions of a campaign from an IP created after since
func (r *SessionRepository) CountRecentSessions(ctx context.Context, db DBExecutor, campaignID uuid.UUID, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sessions
		WHERE campaign_id = $1 AND ip_address = $2 AND created_at > $3
	`

	var count int
	if err := db.GetContext(ctx, &count, query, campaignID, ip, since); err != nil {
		return 0, fmt.Errorf("failed to count recent sessions: %w", err)
	}

	return count, nil
}

// AttachReward sets reward_id only while it is still NULL
func (r *SessionRepository) AttachReward(ctx context.Context, db DBExecutor, sessionID, campaignID, rewardID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET reward_id = $1
		WHERE id = $2 AND campaign_id = $3 AND reward_id IS NULL
	`

	result, err := db.ExecContext(ctx, query, rewardID, sessionID, campaignID)
	if err != nil {
		return fmt.Errorf("failed to attach reward: %w", err)
	}

	return requireAffected(result)
}

// AttachRating sets rating and feedback only while rating is still NULL
func (r *SessionRepository) AttachRating(ctx context.Context, db DBExecutor, sessionID, campaignID uuid.UUID, rating int, feedback *string) error {
	query := `
		UPDATE sessions
		SET rating = $1, feedback = $2
		WHERE id = $3 AND campaign_id = $4 AND rating IS NULL
	`

	result, err := db.ExecContext(ctx, query, rating, feedback, sessionID, campaignID)
	if err != nil {
		return fmt.Errorf("failed to attach rating: %w", err)
	}

	return requireAffected(result)
}
