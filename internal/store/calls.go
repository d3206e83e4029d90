package store

import (
	"context"
	"fmt"
	"time"
)

type CallRecord struct {
	ID              string
	AgentName       string
	LeadName        string
	PropertyAddress string
	Zip             string
	StartedAt       time.Time
}

// CallOutcome is written when a call ends.
type CallOutcome struct {
	FinalStage     string
	AppointmentSet bool
	Completion     float64
	Objections     []string
	Turns          int
	EndedAt        time.Time
}

// StartCall records a new call. Restarting a known id resets its start time.
func (s *Store) StartCall(ctx context.Context, c CallRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (id, agent_name, lead_name, property_address, zip, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			agent_name = $2,
			lead_name = $3,
			property_address = $4,
			zip = $5,
			started_at = $6,
			ended_at = NULL`,
		c.ID, c.AgentName, c.LeadName, c.PropertyAddress, c.Zip, c.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *Store) EndCall(ctx context.Context, callID string, o CallOutcome) error {
	objections := o.Objections
	if objections == nil {
		objections = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE calls SET
			ended_at = $2,
			final_stage = $3,
			appointment_set = $4,
			completion = $5,
			objections = $6,
			turns = $7
		WHERE id = $1`,
		callID, o.EndedAt, o.FinalStage, o.AppointmentSet, o.Completion, objections, o.Turns,
	)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update call %s: not found", callID)
	}
	return nil
}

// EventCounts returns how many events of each kind a call produced.
func (s *Store) EventCounts(ctx context.Context, callID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, count(*) FROM call_events
		WHERE call_id = $1
		GROUP BY kind`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("count call events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		out[kind] = n
	}
	return out, rows.Err()
}
