package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/events"
	"github.com/MikeSquared-Agency/almcoach/internal/hermes"
	"github.com/MikeSquared-Agency/almcoach/internal/performance"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
	"github.com/MikeSquared-Agency/almcoach/internal/slack"
	"github.com/MikeSquared-Agency/almcoach/internal/store"
	"github.com/MikeSquared-Agency/almcoach/internal/suggest"
)

// SubjectSuggestions carries turn results back to the telephony transport.
const SubjectSuggestions = "almcoach.transport.suggestions"

// EndCall removes the call, records its outcome and posts the summary.
// Turns still in flight for the call are discarded.
func (p *Processor) EndCall(ctx context.Context, callID string) (*slack.CallSummary, error) {
	sess, err := p.registry.End(callID)
	if err != nil {
		return nil, err
	}
	p.limiter.Forget(sess.ID)
	p.limiter.Forget(audioKey(sess.ID))
	p.metrics.CallEnded()

	snap := sess.Snapshot()
	summary := p.summarize(snap, sess.Profile)
	p.recordPerformance(sess, snap)

	if p.calls != nil {
		err := p.calls.EndCall(ctx, sess.ID, store.CallOutcome{
			FinalStage:     string(snap.State.Stage),
			AppointmentSet: snap.State.AppointmentSet,
			Completion:     snap.Qualification.Completion,
			Objections:     summary.Objections,
			Turns:          snap.Turns,
			EndedAt:        p.now(),
		})
		if err != nil {
			p.logger.Warn("failed to record call outcome", "call_id", sess.ID, "error", err)
		}
	}

	e := events.New(events.KindCallEnded, sess.ID)
	e.Stage = string(snap.State.Stage)
	p.emit(ctx, e)

	if p.slack != nil {
		if _, err := p.slack.PostCallSummary(ctx, summary); err != nil {
			p.logger.Error("slack call summary failed", "call_id", sess.ID, "error", err)
		}
	}

	p.logger.Info("call ended",
		"call_id", sess.ID,
		"stage", snap.State.Stage,
		"appointment_set", snap.State.AppointmentSet,
		"turns", snap.Turns,
		"duration", summary.Duration,
	)
	return &summary, nil
}

func (p *Processor) summarize(snap session.Snapshot, profile session.Profile) slack.CallSummary {
	report := p.tracker.Report(snap.Qualification)
	alm := qualify.NewALMReport(snap.State, p.almQs)

	objections := make([]string, 0, len(snap.State.DetectedObjections))
	for _, o := range snap.State.Objections() {
		objections = append(objections, string(o))
	}
	return slack.CallSummary{
		CallID:            snap.CallID,
		AgentName:         profile.AgentName,
		LeadName:          profile.LeadName,
		PropertyAddress:   profile.PropertyAddress,
		Duration:          p.now().Sub(snap.StartedAt),
		FinalStage:        string(snap.State.Stage),
		AppointmentSet:    snap.State.AppointmentSet,
		ALMCompletion:     alm.Completion,
		Qualification:     report.Completion,
		Collected:         report.Collected,
		NextSteps:         report.NextSteps,
		Objections:        objections,
		Needs:             snap.Needs,
		Turns:             snap.Turns,
		SuggestionsServed: snap.Served,
		SuggestionsUsed:   snap.Used,
	}
}

// recordPerformance folds the call's served suggestions into the running
// success rates.
func (p *Processor) recordPerformance(sess *session.Session, snap session.Snapshot) {
	served := sess.ServedSuggestions()
	outcomes := make([]performance.Outcome, 0, len(served))
	totals := performance.CallTotals{
		Objections: len(snap.State.Objections()),
		Served:     len(served),
	}
	for _, sv := range served {
		outcomes = append(outcomes, performance.Outcome{Text: sv.Text, Type: sv.Type, Used: sv.Used})
		if !sv.Used {
			continue
		}
		totals.Used++
		switch sv.Type {
		case suggest.TypeObjection:
			totals.ObjectionsHandled++
		case suggest.TypeQualifying:
			totals.QualifyingUsed++
		}
	}
	if totals.ObjectionsHandled > totals.Objections {
		totals.ObjectionsHandled = totals.Objections
	}
	p.performance.RecordCall(outcomes, totals)
}

// Performance summarizes suggestion outcomes across ended calls.
func (p *Processor) Performance(top int) performance.Summary {
	return p.performance.Summary(top)
}

// MarkSuggestionUsed records that the agent read out a served suggestion.
func (p *Processor) MarkSuggestionUsed(ctx context.Context, callID, trackingID string) error {
	sess, err := p.registry.Get(callID)
	if err != nil {
		return err
	}
	sv, ok := sess.MarkUsed(trackingID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSuggestion, trackingID)
	}

	e := events.New(events.KindSuggestionUsed, sess.ID)
	e.TrackingID = trackingID
	e.Stage = string(sv.Stage)
	e.Text = sv.Text
	e.Source = sv.Source
	p.emit(ctx, e)
	return nil
}

// HandleAudio transcribes a chunk and runs it as an utterance. A chunk with
// no speech returns a nil result.
func (p *Processor) HandleAudio(ctx context.Context, callID string, audio []byte, speaker string) (*TurnResult, error) {
	if p.transcriber == nil {
		return nil, ErrTranscriptionUnavailable
	}
	if _, err := p.registry.Get(callID); err != nil {
		return nil, err
	}
	if err := p.limiter.Allow(audioKey(callID)); err != nil {
		p.metrics.RateLimited("transcription")
		return nil, err
	}

	text, err := p.transcriber.Transcribe(ctx, audio, "chunk.webm")
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return p.HandleUtterance(ctx, callID, Input{Speaker: speaker, Text: text})
}

func audioKey(callID string) string { return callID + "/audio" }

// HandleTransportUtterance is the NATS handler for hermes.SubjectUtterance.
// Unknown calls are started on their first utterance.
func (p *Processor) HandleTransportUtterance(subject string, data []byte) {
	ctx := context.Background()

	var msg hermes.UtteranceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Error("failed to parse utterance message", "subject", subject, "error", err)
		return
	}

	if sess, created, err := p.registry.GetOrStart(msg.CallID, session.Profile{}); err != nil {
		p.logger.Error("invalid utterance message", "call_id", msg.CallID, "error", err)
		return
	} else if created {
		p.recordStart(ctx, sess)
	}

	res, err := p.HandleUtterance(ctx, msg.CallID, Input{Speaker: msg.Speaker, Text: msg.Text, Timestamp: msg.Timestamp})
	if err != nil {
		p.logger.Warn("transport utterance not processed", "call_id", msg.CallID, "error", err)
		return
	}
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(SubjectSuggestions, res); err != nil {
		p.logger.Error("failed to publish suggestions", "call_id", msg.CallID, "error", err)
	}
}

// Progress returns the qualification and ALM reports for a live call.
func (p *Processor) Progress(callID string) (Progress, error) {
	sess, err := p.registry.Get(callID)
	if err != nil {
		return Progress{}, err
	}
	return p.progress(sess.State(), sess.Qualification()), nil
}

// Snapshot returns the full state of a live call.
func (p *Processor) Snapshot(callID string) (session.Snapshot, error) {
	sess, err := p.registry.Get(callID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Status describes the processor's wiring for the health endpoint.
type Status struct {
	ActiveCalls   int                  `json:"active_calls"`
	AIEnabled     bool                 `json:"ai_enabled"`
	Analysis      bool                 `json:"analysis_enabled"`
	Transcription bool                 `json:"transcription_enabled"`
	Market        bool                 `json:"market_enabled"`
	Stages        []conversation.Stage `json:"stages"`
}

func (p *Processor) Status() Status {
	return Status{
		ActiveCalls:   p.registry.Len(),
		AIEnabled:     p.ai != nil,
		Analysis:      p.analyzer != nil,
		Transcription: p.transcriber != nil,
		Market:        p.market != nil,
		Stages:        conversation.Stages,
	}
}
