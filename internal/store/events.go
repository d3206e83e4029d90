package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/almcoach/internal/events"
)

// Emit inserts one call event; it satisfies events.Sink.
func (s *Store) Emit(ctx context.Context, e events.Event) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO call_events (id, call_id, kind, tracking_id, stage, objection, category, value, text, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		id, e.CallID, string(e.Kind), e.TrackingID, e.Stage, e.Objection, e.Category, e.Value, e.Text, e.Source, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert call event: %w", err)
	}
	return nil
}

// ServedSuggestion returns the text and source of a served suggestion by
// its tracking id.
func (s *Store) ServedSuggestion(ctx context.Context, callID, trackingID string) (text, source string, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT text, source FROM call_events
		WHERE call_id = $1 AND tracking_id = $2 AND kind = $3
		ORDER BY created_at DESC
		LIMIT 1`,
		callID, trackingID, string(events.KindSuggestionServed),
	)
	if err := row.Scan(&text, &source); err != nil {
		return "", "", fmt.Errorf("get served suggestion: %w", err)
	}
	return text, source, nil
}
