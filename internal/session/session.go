// Package session owns the live per-call state and the registry of calls in
// progress.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
)

var (
	ErrNotFound = errors.New("call not found")
	ErrExists   = errors.New("call already started")
	ErrClosed   = errors.New("call ended")
)

// Profile is what the agent knows about the call before it starts. Its
// fields fill script placeholders.
type Profile struct {
	AgentName       string            `json:"agent_name,omitempty"`
	Brokerage       string            `json:"brokerage,omitempty"`
	LeadName        string            `json:"lead_name,omitempty"`
	PropertyAddress string            `json:"property_address,omitempty"`
	Zip             string            `json:"zip,omitempty"`
	ListPrice       float64           `json:"list_price,omitempty"`
	ShowingDate     string            `json:"showing_date,omitempty"`
	ShowingTime     string            `json:"showing_time,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Email           string            `json:"email,omitempty"`
	Vars            map[string]string `json:"vars,omitempty"`
}

// Variables flattens the profile into placeholder values. Explicit Vars
// entries win over the named fields.
func (p Profile) Variables() map[string]string {
	out := map[string]string{
		"agent_name":       p.AgentName,
		"brokerage":        p.Brokerage,
		"lead_name":        p.LeadName,
		"property_address": p.PropertyAddress,
		"showing_date":     p.ShowingDate,
		"showing_time":     p.ShowingTime,
		"phone":            p.Phone,
		"email":            p.Email,
		"zip":              p.Zip,
	}
	for k, v := range p.Vars {
		out[k] = v
	}
	for k, v := range out {
		if strings.TrimSpace(v) == "" {
			delete(out, k)
		}
	}
	return out
}

// Session is one live call. Turn processing must hold Lock for its whole
// duration so transitions apply in utterance order.
type Session struct {
	ID        string
	Profile   Profile
	CreatedAt time.Time

	turn sync.Mutex

	mu            sync.RWMutex
	machine       *conversation.Machine
	qualification qualify.State
	history       []conversation.Utterance
	needs         []string
	interest      string
	voice         *signals.Voice
	dynamics      *signals.Dynamics
	turns         int
	served        map[string]Served
	used          int

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(id string, p Profile, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		Profile:   p,
		CreatedAt: now,
		machine:   conversation.NewMachine(),
		served:    make(map[string]Served),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Lock serialises turns on this call.
func (s *Session) Lock()   { s.turn.Lock() }
func (s *Session) Unlock() { s.turn.Unlock() }

// Context is cancelled when the call ends.
func (s *Session) Context() context.Context { return s.ctx }

// Alive reports whether the call is still running. Late results for an
// ended call must be discarded.
func (s *Session) Alive() bool { return s.ctx.Err() == nil }

// Advance runs one utterance through the stage machine.
func (s *Session) Advance(u conversation.Utterance, sig conversation.Signals) conversation.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Advance(u, sig)
}

// State returns a copy of the stage state.
func (s *Session) State() conversation.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Snapshot()
}

// Snapshot is a consistent copy of the call's state for reporting.
type Snapshot struct {
	CallID        string                   `json:"call_id"`
	State         conversation.State       `json:"state"`
	Qualification qualify.State            `json:"qualification"`
	History       []conversation.Utterance `json:"history"`
	Needs         []string                 `json:"needs"`
	InterestLevel string                   `json:"interest_level"`
	Turns         int                      `json:"turns"`
	Served        int                      `json:"suggestions_served"`
	Used          int                      `json:"suggestions_used"`
	StartedAt     time.Time                `json:"started_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CallID:        s.ID,
		State:         s.machine.Snapshot(),
		Qualification: s.qualification,
		History:       append([]conversation.Utterance(nil), s.history...),
		Needs:         append([]string(nil), s.needs...),
		InterestLevel: s.interest,
		Turns:         s.turns,
		Served:        len(s.served),
		Used:          s.used,
		StartedAt:     s.CreatedAt,
	}
}

// Qualification returns a copy of the qualification state.
func (s *Session) Qualification() qualify.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qualification
}

// SetQualification replaces the qualification state.
func (s *Session) SetQualification(q qualify.State) {
	s.mu.Lock()
	s.qualification = q
	s.mu.Unlock()
}

// Record appends an utterance to the call history.
func (s *Session) Record(u conversation.Utterance) {
	s.mu.Lock()
	s.history = append(s.history, u)
	s.turns++
	s.mu.Unlock()
}

func (s *Session) History() []conversation.Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]conversation.Utterance(nil), s.history...)
}

// AddNeeds records needs not seen before and returns the new ones.
func (s *Session) AddNeeds(needs []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []string
	for _, n := range needs {
		n = strings.TrimSpace(n)
		if n == "" || containsFold(s.needs, n) {
			continue
		}
		s.needs = append(s.needs, n)
		added = append(added, n)
	}
	return added
}

func (s *Session) Needs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.needs...)
}

func (s *Session) SetInterest(level string) {
	s.mu.Lock()
	s.interest = level
	s.mu.Unlock()
}

func (s *Session) Interest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interest
}

// UpdateSignals keeps the latest non-nil voice and dynamics readings.
func (s *Session) UpdateSignals(v *signals.Voice, d *signals.Dynamics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v != nil {
		s.voice = v
	}
	if d != nil {
		s.dynamics = d
	}
}

func (s *Session) Signals() (*signals.Voice, *signals.Dynamics) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voice, s.dynamics
}

// Served is a suggestion shown to the agent, kept so a later "used" report
// can be attributed.
type Served struct {
	Text   string
	Source string
	Type   string
	Stage  conversation.Stage
	Used   bool
}

// RecordServed remembers a served suggestion by tracking id.
func (s *Session) RecordServed(trackingID string, sv Served) {
	s.mu.Lock()
	s.served[trackingID] = sv
	s.mu.Unlock()
}

// MarkUsed flags a served suggestion as used. It reports false for an
// unknown id; marking twice counts once.
func (s *Session) MarkUsed(trackingID string) (Served, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.served[trackingID]
	if !ok {
		return Served{}, false
	}
	if !sv.Used {
		sv.Used = true
		s.served[trackingID] = sv
		s.used++
	}
	return sv, true
}

// ServedSuggestions returns every suggestion served on the call.
func (s *Session) ServedSuggestions() []Served {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Served, 0, len(s.served))
	for _, sv := range s.served {
		out = append(out, sv)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
