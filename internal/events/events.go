// Package events carries call analytics to the configured sinks. Emission
// is fire-and-forget: a failing sink is logged and counted, never surfaced
// to the turn.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/almcoach/internal/metrics"
)

// Kind names an analytics event.
type Kind string

const (
	KindCallStarted      Kind = "call_started"
	KindCallEnded        Kind = "call_ended"
	KindSuggestionServed Kind = "suggestion_served"
	KindSuggestionUsed   Kind = "suggestion_used"
	KindObjectionHandled Kind = "objection_handled"
	KindNeedIdentified   Kind = "need_identified"
	KindStageChanged     Kind = "stage_changed"
)

type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	CallID     string    `json:"call_id"`
	TrackingID string    `json:"tracking_id,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Objection  string    `json:"objection,omitempty"`
	Category   string    `json:"category,omitempty"`
	Value      string    `json:"value,omitempty"`
	Text       string    `json:"text,omitempty"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// New stamps an event with a fresh id and the current time.
func New(kind Kind, callID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		CallID:    callID,
		Timestamp: time.Now().UTC(),
	}
}

// Sink accepts events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink Sink
}

// Fanout delivers every event to each sink in turn.
type Fanout struct {
	sinks   []NamedSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFanout(m *metrics.Metrics, logger *slog.Logger, sinks ...NamedSink) *Fanout {
	var live []NamedSink
	for _, s := range sinks {
		if s.Sink != nil {
			live = append(live, s)
		}
	}
	return &Fanout{sinks: live, metrics: m, logger: logger}
}

// Emit never fails.
func (f *Fanout) Emit(ctx context.Context, e Event) error {
	if f == nil {
		return nil
	}
	for _, s := range f.sinks {
		if err := s.Sink.Emit(ctx, e); err != nil {
			f.metrics.EventError(s.Name)
			f.logger.Warn("event sink failed", "sink", s.Name, "kind", e.Kind, "call_id", e.CallID, "error", err)
		}
	}
	return nil
}

// Len reports the number of attached sinks.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(_ context.Context, e Event) error {
	s.Logger.Debug("call event",
		"kind", e.Kind,
		"call_id", e.CallID,
		"tracking_id", e.TrackingID,
		"stage", e.Stage,
		"objection", e.Objection,
	)
	return nil
}
