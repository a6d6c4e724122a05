package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/avisly/playengine/internal/model"
)

// EventRepository appends analytics events
type EventRepository struct{}

// NewEventRepository creates a new event repository
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// InsertEvents appends events with a single multi-row insert
func (r *EventRepository) InsertEvents(ctx context.Context, db DBExecutor, events []model.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	valuesClause := make([]string, len(events))
	args := make([]interface{}, 0, len(events)*4)

	for i, e := range events {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, $%d)",
			i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, e.ID, e.SessionID, string(e.EventType), e.CreatedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO analytics_events (id, session_id, event_type, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", "))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert analytics events: %w", err)
	}

	return nil
}
