// Package analytics records funnel events. Recording never fails the
// operation that triggered it: sink errors are logged and counted.
package analytics

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/avisly/playengine/internal/metrics"
	"github.com/avisly/playengine/internal/model"
)

// Emitter accepts funnel events
type Emitter interface {
	Emit(ctx context.Context, events ...model.AnalyticsEvent)
}

// Sink durably records events
type Sink interface {
	Name() string
	Record(ctx context.Context, events []model.AnalyticsEvent) error
}

// Recorder fans events out to every sink
type Recorder struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewRecorder creates a recorder over sinks
func NewRecorder(logger zerolog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

// Emit implements Emitter
func (r *Recorder) Emit(ctx context.Context, events ...model.AnalyticsEvent) {
	if len(events) == 0 {
		return
	}
	// The triggering request may be finishing; recording outlives it.
	ctx = context.WithoutCancel(ctx)

	for _, sink := range r.sinks {
		if err := sink.Record(ctx, events); err != nil {
			metrics.RecordAnalyticsDropped(sink.Name())
			r.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("session_id", events[0].SessionID.String()).
				Str("event_type", string(events[0].EventType)).
				Int("count", len(events)).
				Msg("Failed to record analytics events")
		}
	}
}

// EventWriter appends events to the backing store
type EventWriter interface {
	InsertEvents(ctx context.Context, events ...model.AnalyticsEvent) error
}

// StoreSink writes events to the analytics_events table
type StoreSink struct {
	writer EventWriter
}

// NewStoreSink creates a sink over the backing store
func NewStoreSink(writer EventWriter) *StoreSink {
	return &StoreSink{writer: writer}
}

// Name implements Sink
func (s *StoreSink) Name() string { return "store" }

// Record implements Sink
func (s *StoreSink) Record(ctx context.Context, events []model.AnalyticsEvent) error {
	return s.writer.InsertEvents(ctx, events...)
}
