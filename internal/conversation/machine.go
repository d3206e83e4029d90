package conversation

import "sort"

// State is the per-call stage state. It is owned by exactly one session and
// only mutated through Machine.Advance.
type State struct {
	Stage               Stage                  `json:"stage"`
	AppointmentSet      bool                   `json:"appointment_set"`
	LocationDiscussed   bool                   `json:"location_discussed"`
	MotivationUncovered bool                   `json:"motivation_uncovered"`
	DetectedObjections  map[ObjectionType]bool `json:"detected_objections"`
	LastSpeaker         Speaker                `json:"last_speaker,omitempty"`
}

// Objections returns the detected objections in a stable order.
func (s *State) Objections() []ObjectionType {
	out := make([]ObjectionType, 0, len(s.DetectedObjections))
	for o := range s.DetectedObjections {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Signals is the detector output the machine consumes for one utterance.
type Signals struct {
	Objection        ObjectionType
	SelfIntroduction bool
	Commitment       bool
	Farewell         bool
}

// Transition describes what one utterance did to the state.
type Transition struct {
	From      Stage
	To        Stage
	Effective Stage
	Objection ObjectionType
	EndCall   bool
}

// Interrupted reports whether this turn was an objection overlay.
func (t Transition) Interrupted() bool {
	return t.Effective == StageObjectionHandling
}

// Advanced reports whether the persistent stage moved forward.
func (t Transition) Advanced() bool {
	return t.To != t.From
}

// Machine applies the stage transition table.
type Machine struct {
	state State
}

func NewMachine() *Machine {
	return &Machine{state: State{
		Stage:              StageOpening,
		DetectedObjections: make(map[ObjectionType]bool),
	}}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	cp := m.state
	cp.DetectedObjections = make(map[ObjectionType]bool, len(m.state.DetectedObjections))
	for k, v := range m.state.DetectedObjections {
		cp.DetectedObjections[k] = v
	}
	return cp
}

// Stage returns the persistent stage.
func (m *Machine) Stage() Stage {
	return m.state.Stage
}

// Advance applies one utterance. An objection turns the effective stage into
// StageObjectionHandling for this turn only and consumes no transition.
func (m *Machine) Advance(u Utterance, sig Signals) Transition {
	from := m.state.Stage
	m.state.LastSpeaker = u.Speaker

	if sig.Objection != "" {
		m.state.DetectedObjections[sig.Objection] = true
		return Transition{From: from, To: from, Effective: StageObjectionHandling, Objection: sig.Objection}
	}

	t := Transition{From: from, To: from}
	switch from {
	case StageOpening:
		if u.Speaker == SpeakerAgent && sig.SelfIntroduction {
			m.state.Stage = StageAppointment
		}
	case StageAppointment:
		if u.Speaker == SpeakerClient && sig.Commitment {
			m.state.AppointmentSet = true
			m.state.Stage = StageLocation
		}
	case StageLocation:
		// Any client reply counts as the location being discussed.
		if u.Speaker == SpeakerClient {
			m.state.LocationDiscussed = true
			m.state.Stage = StageMotivation
		}
	case StageMotivation:
		if u.Speaker == SpeakerClient {
			m.state.MotivationUncovered = true
			m.state.Stage = StageClosing
		}
	case StageClosing:
		t.EndCall = u.Speaker == SpeakerAgent && sig.Farewell
	}

	t.To = m.state.Stage
	t.Effective = t.To
	return t
}
