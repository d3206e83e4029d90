package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/almcoach/internal/analyzer"
	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/detect"
	"github.com/MikeSquared-Agency/almcoach/internal/events"
	"github.com/MikeSquared-Agency/almcoach/internal/llm"
	"github.com/MikeSquared-Agency/almcoach/internal/metrics"
	"github.com/MikeSquared-Agency/almcoach/internal/optimizer"
	"github.com/MikeSquared-Agency/almcoach/internal/performance"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/ratelimit"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
	"github.com/MikeSquared-Agency/almcoach/internal/slack"
	"github.com/MikeSquared-Agency/almcoach/internal/store"
	"github.com/MikeSquared-Agency/almcoach/internal/suggest"
)

var (
	ErrEmptyUtterance           = errors.New("utterance text is empty")
	ErrUnknownSuggestion        = errors.New("unknown suggestion")
	ErrTranscriptionUnavailable = errors.New("transcription not configured")
)

const emitTimeout = 2 * time.Second

// Transcriber turns an audio chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// MarketLookup returns insights for a zip, or nil.
type MarketLookup interface {
	Lookup(ctx context.Context, zip string) *signals.Market
}

// CallRecorder persists call start and outcome.
type CallRecorder interface {
	StartCall(ctx context.Context, c store.CallRecord) error
	EndCall(ctx context.Context, callID string, o store.CallOutcome) error
}

// Publisher sends a payload on a bus subject.
type Publisher interface {
	Publish(subject string, data any) error
}

// SummaryPoster publishes the end-of-call digest.
type SummaryPoster interface {
	PostCallSummary(ctx context.Context, s slack.CallSummary) (string, error)
}

// Deps wires the processor. Completer, Transcriber, Market, Calls, Slack and
// Publisher are optional; without a Completer no AI suggestions or analysis run.
type Deps struct {
	Registry    *session.Registry
	Detector    *detect.Detector
	Tracker     *qualify.Tracker
	Library     *scripts.Library
	Completer   llm.Completer
	Transcriber Transcriber
	Market      MarketLookup
	Limiter     *ratelimit.Limiter
	Events      events.Sink
	Calls       CallRecorder
	Slack       SummaryPoster
	Publisher   Publisher
	Performance *performance.Tracker
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Options struct {
	MaxSuggestions  int
	AnalysisEnabled bool
}

// Processor runs the per-utterance coaching pipeline.
type Processor struct {
	registry    *session.Registry
	detector    *detect.Detector
	tracker     *qualify.Tracker
	lib         *scripts.Library
	template    *suggest.TemplateGenerator
	ai          *suggest.AIGenerator
	fallback    *suggest.FallbackGenerator
	filter      *suggest.FirstCallFilter
	optimizer   *optimizer.Optimizer
	analyzer    *analyzer.Analyzer
	transcriber Transcriber
	market      MarketLookup
	limiter     *ratelimit.Limiter
	events      events.Sink
	calls       CallRecorder
	slack       SummaryPoster
	publisher   Publisher
	performance *performance.Tracker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	almQs       qualify.ALMQuestions
	now         func() time.Time
}

func New(d Deps, opts Options) *Processor {
	p := &Processor{
		registry:    d.Registry,
		detector:    d.Detector,
		tracker:     d.Tracker,
		lib:         d.Library,
		template:    suggest.NewTemplateGenerator(d.Library, d.Tracker),
		fallback:    suggest.NewFallbackGenerator(d.Library),
		filter:      suggest.NewFirstCallFilter(d.Detector, d.Library),
		optimizer:   optimizer.New(opts.MaxSuggestions),
		transcriber: d.Transcriber,
		market:      d.Market,
		limiter:     d.Limiter,
		events:      d.Events,
		calls:       d.Calls,
		slack:       d.Slack,
		publisher:   d.Publisher,
		performance: d.Performance,
		metrics:     d.Metrics,
		logger:      d.Logger,
		almQs:       almQuestions(d.Library),
		now:         time.Now,
	}
	if p.performance == nil {
		p.performance = performance.NewTracker()
	}
	if d.Completer != nil {
		p.ai = suggest.NewAIGenerator(d.Completer, d.Library, d.Metrics, d.Logger)
		if opts.AnalysisEnabled {
			p.analyzer = analyzer.New(d.Completer, d.Logger)
		}
	}
	return p
}

// almQuestions takes the first line of each ALM script section.
func almQuestions(lib *scripts.Library) qualify.ALMQuestions {
	q := qualify.ALMQuestions{}
	for _, pr := range []qualify.Priority{
		qualify.PriorityAppointment,
		qualify.PriorityLocation,
		qualify.PriorityMotivation,
		qualify.PriorityConfirmation,
	} {
		if lines := lib.ALM[string(pr)]; len(lines) > 0 {
			q[pr] = lines[0]
		}
	}
	return q
}

// Input is one utterance as delivered by a transport.
type Input struct {
	Speaker   string            `json:"speaker"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Voice     *signals.Voice    `json:"voice_metrics,omitempty"`
	Dynamics  *signals.Dynamics `json:"conversation_dynamics,omitempty"`
}

// Progress combines the qualification and ALM reports.
type Progress struct {
	Qualification qualify.Report    `json:"qualification"`
	ALM           qualify.ALMReport `json:"alm"`
}

// TurnResult is what the agent sees after an utterance.
type TurnResult struct {
	CallID       string              `json:"call_id"`
	Status       string              `json:"status"`
	Primary      *suggest.Candidate  `json:"primary_suggestion"`
	Alternatives []suggest.Candidate `json:"alternative_suggestions"`
	Warnings     []string            `json:"warnings"`
	Stage        conversation.Stage  `json:"stage"`
	BaseStage    conversation.Stage  `json:"base_stage"`
	Objection    string              `json:"objection,omitempty"`
	EndCall      bool                `json:"end_call,omitempty"`
	Progress     Progress            `json:"progress"`
}

// StartCall registers a call and returns its opening suggestions.
func (p *Processor) StartCall(ctx context.Context, callID string, profile session.Profile) (*TurnResult, error) {
	sess, err := p.registry.Start(callID, profile)
	if err != nil {
		return nil, err
	}
	p.recordStart(ctx, sess)

	sess.Lock()
	defer sess.Unlock()

	state := sess.State()
	cands := p.template.Generate(ctx, p.request(sess, state, state.Stage, ""))
	if len(cands) == 0 {
		cands = p.fallback.Generate(ctx, p.request(sess, state, state.Stage, ""))
	}
	ranked := p.optimizer.Rank(p.filter.Apply(cands, profile.Variables()), optimizer.Input{})
	return p.result(ctx, sess, state, conversation.Transition{From: state.Stage, To: state.Stage, Effective: state.Stage}, ranked, nil), nil
}

// recordStart counts, persists and announces a newly registered call.
func (p *Processor) recordStart(ctx context.Context, sess *session.Session) {
	profile := sess.Profile
	p.metrics.CallStarted()
	p.logger.Info("call started", "call_id", sess.ID, "agent", profile.AgentName, "zip", profile.Zip)

	if p.calls != nil {
		err := p.calls.StartCall(ctx, store.CallRecord{
			ID:              sess.ID,
			AgentName:       profile.AgentName,
			LeadName:        profile.LeadName,
			PropertyAddress: profile.PropertyAddress,
			Zip:             profile.Zip,
			StartedAt:       sess.CreatedAt,
		})
		if err != nil {
			p.logger.Warn("failed to record call start", "call_id", sess.ID, "error", err)
		}
	}
	p.emit(ctx, events.New(events.KindCallStarted, sess.ID))
}

// HandleUtterance runs one utterance through detection, the stage machine,
// qualification and suggestion generation. Turns on the same call are
// serialised; turns on different calls run in parallel.
func (p *Processor) HandleUtterance(ctx context.Context, callID string, in Input) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	if err := p.limiter.Allow(callID); err != nil {
		p.metrics.RateLimited("turn")
		return nil, err
	}

	sess, err := p.registry.Get(callID)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()
	if !sess.Alive() {
		return nil, session.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	start := p.now()
	u := conversation.Utterance{Text: text, Speaker: p.speaker(in.Speaker, text), Timestamp: in.Timestamp}
	if u.Timestamp.IsZero() {
		u.Timestamp = start
	}

	sig := p.detector.Signals(u, sess.Profile.Brokerage)
	warnings := p.detector.AvoidPhrases(text)
	if u.Speaker == conversation.SpeakerAgent {
		for _, topic := range p.detector.BadNews(text) {
			warnings = append(warnings, fmt.Sprintf("Avoid delivering bad news (%s) on the first call", strings.ReplaceAll(topic, "_", " ")))
		}
	}

	sess.Record(u)
	tr := sess.Advance(u, sig)
	if tr.Objection != "" {
		p.metrics.Objection(string(tr.Objection))
	}

	var needs []events.Event
	if u.Speaker == conversation.SpeakerClient {
		q := sess.Qualification()
		matches := p.detector.Qualification(text)
		for _, c := range p.tracker.Apply(&q, matches) {
			e := events.New(events.KindNeedIdentified, sess.ID)
			e.Category = string(c)
			e.Value = valueOf(q, c)
			needs = append(needs, e)
		}
		sess.SetQualification(q)
	}
	sess.UpdateSignals(in.Voice, in.Dynamics)

	if p.analyzer != nil && u.Speaker == conversation.SpeakerClient {
		a, err := p.analyzer.Analyze(ctx, transcript(sess.History()))
		if !sess.Alive() {
			p.logger.Info("call ended during analysis, discarding turn", "call_id", sess.ID)
			return nil, session.ErrClosed
		}
		if err == nil {
			if a.InterestLevel != analyzer.Unknown {
				sess.SetInterest(a.InterestLevel)
			}
			for _, n := range sess.AddNeeds(a.Needs) {
				e := events.New(events.KindNeedIdentified, sess.ID)
				e.Category = "need"
				e.Value = n
				needs = append(needs, e)
			}
		}
	}

	state := sess.State()
	req := p.request(sess, state, tr.Effective, tr.Objection)
	if p.market != nil && sess.Profile.Zip != "" {
		req.Signals.Market = p.market.Lookup(ctx, sess.Profile.Zip)
	}

	pool := p.template.Generate(ctx, req)
	if p.ai != nil {
		pool = append(pool, p.ai.Generate(ctx, req)...)
	}
	if !sess.Alive() {
		p.logger.Info("call ended during generation, discarding turn", "call_id", sess.ID)
		return nil, session.ErrClosed
	}
	if len(pool) == 0 {
		pool = p.fallback.Generate(ctx, req)
	}

	filtered := p.filter.Apply(pool, req.Vars)
	ranked := p.optimizer.Rank(filtered, optimizer.Input{Signals: req.Signals, Objections: state.Objections()})
	if tr.Interrupted() {
		ranked = promoteHandler(ranked, filtered, tr.Objection, p.optimizer.Max())
	}
	if len(ranked) == 0 {
		ranked = p.fallback.Generate(ctx, req)
	}

	for _, e := range needs {
		e.Stage = string(tr.Effective)
		p.emit(ctx, e)
	}
	if tr.Advanced() {
		e := events.New(events.KindStageChanged, sess.ID)
		e.Stage = string(tr.To)
		e.Value = string(tr.From)
		p.emit(ctx, e)
	}

	res := p.result(ctx, sess, state, tr, ranked, warnings)
	if tr.Interrupted() && res.Primary != nil {
		e := events.New(events.KindObjectionHandled, sess.ID)
		e.Objection = string(tr.Objection)
		e.TrackingID = res.Primary.TrackingID
		e.Stage = string(tr.From)
		p.emit(ctx, e)
	}

	p.metrics.ObserveTurn(string(tr.Effective), p.now().Sub(start))
	p.logger.Debug("turn processed",
		"call_id", sess.ID,
		"speaker", u.Speaker,
		"stage", tr.Effective,
		"objection", tr.Objection,
		"suggestions", len(ranked),
	)
	return res, nil
}

// promoteHandler puts the first objection handler for o at the top.
func promoteHandler(ranked, pool []suggest.Candidate, o conversation.ObjectionType, max int) []suggest.Candidate {
	var handler *suggest.Candidate
	for i := range pool {
		if pool[i].Source == suggest.SourceTemplate && pool[i].Objection == o {
			handler = &pool[i]
			break
		}
	}
	if handler == nil {
		return ranked
	}
	out := []suggest.Candidate{*handler}
	for _, c := range ranked {
		if c.Text == handler.Text {
			out[0] = c
			continue
		}
		out = append(out, c)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func (p *Processor) request(sess *session.Session, state conversation.State, effective conversation.Stage, o conversation.ObjectionType) suggest.Request {
	voice, dyn := sess.Signals()
	return suggest.Request{
		CallID:        sess.ID,
		Stage:         effective,
		State:         state,
		Objection:     o,
		Qualification: sess.Qualification(),
		Needs:         sess.Needs(),
		InterestLevel: sess.Interest(),
		History:       sess.History(),
		Vars:          sess.Profile.Variables(),
		ListPrice:     sess.Profile.ListPrice,
		Signals:       signals.Context{Voice: voice, Dynamics: dyn},
	}
}

// result stamps tracking ids, records the served suggestions and builds
// the response.
func (p *Processor) result(ctx context.Context, sess *session.Session, state conversation.State, tr conversation.Transition, ranked []suggest.Candidate, warnings []string) *TurnResult {
	for i := range ranked {
		ranked[i].TrackingID = uuid.NewString()
		sess.RecordServed(ranked[i].TrackingID, session.Served{
			Text:   ranked[i].Text,
			Source: string(ranked[i].Source),
			Type:   ranked[i].Type,
			Stage:  tr.Effective,
		})
		p.metrics.SuggestionServed(string(ranked[i].Source))

		e := events.New(events.KindSuggestionServed, sess.ID)
		e.TrackingID = ranked[i].TrackingID
		e.Stage = string(tr.Effective)
		e.Objection = string(ranked[i].Objection)
		e.Text = ranked[i].Text
		e.Source = string(ranked[i].Source)
		p.emit(ctx, e)
	}

	res := &TurnResult{
		CallID:       sess.ID,
		Status:       "success",
		Alternatives: []suggest.Candidate{},
		Warnings:     warnings,
		Stage:        tr.Effective,
		BaseStage:    tr.To,
		Objection:    string(tr.Objection),
		EndCall:      tr.EndCall,
		Progress:     p.progress(state, sess.Qualification()),
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	if len(ranked) > 0 {
		primary := ranked[0]
		res.Primary = &primary
		res.Alternatives = append(res.Alternatives, ranked[1:]...)
	}
	return res
}

func (p *Processor) progress(state conversation.State, q qualify.State) Progress {
	return Progress{
		Qualification: p.tracker.Report(q),
		ALM:           qualify.NewALMReport(state, p.almQs),
	}
}

func (p *Processor) speaker(hint, text string) conversation.Speaker {
	if sp, err := conversation.ParseSpeaker(hint); err == nil {
		return sp
	}
	return detect.GuessSpeaker(text)
}

// emit sends e to the sinks with its own deadline so a slow sink cannot
// outlive the turn's cancellation or stall it for long.
func (p *Processor) emit(ctx context.Context, e events.Event) {
	if p.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := p.events.Emit(ctx, e); err != nil {
		p.logger.Warn("event emit failed", "kind", e.Kind, "call_id", e.CallID, "error", err)
	}
}

func valueOf(q qualify.State, c detect.Category) string {
	var f qualify.Field
	switch c {
	case detect.CategoryArea:
		f = q.Area
	case detect.CategoryLocationNeeds:
		f = q.LocationNeeds
	case detect.CategoryMoney:
		f = q.Money
	}
	if f.Value == nil {
		return ""
	}
	return *f.Value
}

func transcript(history []conversation.Utterance) string {
	var sb strings.Builder
	for _, u := range history {
		if u.Speaker == conversation.SpeakerAgent {
			sb.WriteString("Agent: ")
		} else {
			sb.WriteString("Client: ")
		}
		sb.WriteString(u.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
