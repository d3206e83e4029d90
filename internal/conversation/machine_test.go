package conversation

import "testing"

func agent(text string) Utterance  { return Utterance{Text: text, Speaker: SpeakerAgent} }
func client(text string) Utterance { return Utterance{Text: text, Speaker: SpeakerClient} }

func TestAdvance_HappyPath(t *testing.T) {
	m := NewMachine()

	steps := []struct {
		name string
		utt  Utterance
		sig  Signals
		want Stage
	}{
		{"client before intro stays in opening", client("hello?"), Signals{}, StageOpening},
		{"agent without intro stays in opening", agent("hi there"), Signals{}, StageOpening},
		{"agent intro", agent("Hi, this is Sarah with ABC Realty"), Signals{SelfIntroduction: true}, StageAppointment},
		{"client without commitment", client("hmm"), Signals{}, StageAppointment},
		{"client commits", client("Yes, tomorrow works"), Signals{Commitment: true}, StageLocation},
		{"agent in location", agent("Where are you looking?"), Signals{}, StageLocation},
		{"client any reply", client("Near downtown"), Signals{}, StageMotivation},
		{"client motivation", client("We need more space"), Signals{}, StageClosing},
		{"closing is terminal", client("Yes sure"), Signals{Commitment: true}, StageClosing},
	}

	for _, s := range steps {
		tr := m.Advance(s.utt, s.sig)
		if m.Stage() != s.want {
			t.Fatalf("%s: expected stage %s, got %s", s.name, s.want, m.Stage())
		}
		if tr.Effective != s.want {
			t.Errorf("%s: expected effective %s, got %s", s.name, s.want, tr.Effective)
		}
	}

	st := m.Snapshot()
	if !st.AppointmentSet || !st.LocationDiscussed || !st.MotivationUncovered {
		t.Errorf("expected all flags set, got %+v", st)
	}
}

func TestAdvance_ObjectionOverlay(t *testing.T) {
	m := NewMachine()
	m.Advance(agent("this is Sam from XYZ Realty"), Signals{SelfIntroduction: true})

	tr := m.Advance(client("I'd rather talk to the listing agent"), Signals{Objection: ObjectionListingAgent, Commitment: true})

	if tr.Effective != StageObjectionHandling {
		t.Errorf("expected objection overlay, got %s", tr.Effective)
	}
	if !tr.Interrupted() {
		t.Error("expected interrupted turn")
	}
	if m.Stage() != StageAppointment {
		t.Errorf("expected persistent stage to remain appointment, got %s", m.Stage())
	}
	if tr.Advanced() {
		t.Error("objection turn must not consume a transition")
	}
	if m.Snapshot().AppointmentSet {
		t.Error("objection turn must not set appointment")
	}
	if !m.Snapshot().DetectedObjections[ObjectionListingAgent] {
		t.Error("expected objection recorded")
	}

	// Next turn resumes the pre-interrupt stage.
	tr = m.Advance(client("ok, sure, tomorrow"), Signals{Commitment: true})
	if tr.From != StageAppointment || tr.To != StageLocation {
		t.Errorf("expected appointment -> location, got %s -> %s", tr.From, tr.To)
	}
}

func TestAdvance_ObjectionsAccumulate(t *testing.T) {
	m := NewMachine()
	m.Advance(client("I'm working with an agent"), Signals{Objection: ObjectionWorkingWithAgent})
	m.Advance(client("just a quick question"), Signals{Objection: ObjectionQuickQuestion})
	m.Advance(client("anything"), Signals{})

	snap := m.Snapshot()
	got := snap.Objections()
	if len(got) != 2 {
		t.Fatalf("expected 2 objections, got %v", got)
	}
	if got[0] != ObjectionQuickQuestion || got[1] != ObjectionWorkingWithAgent {
		t.Errorf("expected sorted objections, got %v", got)
	}
}

func TestAdvance_StageNeverDecreases(t *testing.T) {
	m := NewMachine()
	inputs := []struct {
		utt Utterance
		sig Signals
	}{
		{agent("this is Al at Acme Real Estate"), Signals{SelfIntroduction: true}},
		{client("not ready yet"), Signals{Objection: ObjectionNotReady}},
		{client("sure"), Signals{Commitment: true}},
		{client("pending?"), Signals{Objection: ObjectionPendingProperty}},
		{agent("this is Al again"), Signals{SelfIntroduction: true}},
		{client("north side"), Signals{}},
		{client("growing family"), Signals{}},
		{client("out of town"), Signals{Objection: ObjectionOutOfTown}},
	}

	prev := m.Stage().Rank()
	for i, in := range inputs {
		m.Advance(in.utt, in.sig)
		r := m.Stage().Rank()
		if r < prev {
			t.Fatalf("step %d: stage rank decreased from %d to %d", i, prev, r)
		}
		prev = r
	}
	if m.Stage() != StageClosing {
		t.Errorf("expected closing, got %s", m.Stage())
	}
}

func TestAdvance_AppointmentSetNeverReverts(t *testing.T) {
	m := NewMachine()
	m.Advance(agent("this is Jo, Best Realty"), Signals{SelfIntroduction: true})
	m.Advance(client("yes"), Signals{Commitment: true})
	m.Advance(client("I'm not ready"), Signals{Objection: ObjectionNotReady})
	m.Advance(client("no"), Signals{})

	if !m.Snapshot().AppointmentSet {
		t.Error("appointment_set reverted")
	}
}

func TestAdvance_ClosingEndCall(t *testing.T) {
	m := NewMachine()
	m.Advance(agent("this is Jo, Best Realty"), Signals{SelfIntroduction: true})
	m.Advance(client("yes"), Signals{Commitment: true})
	m.Advance(client("downtown"), Signals{})
	m.Advance(client("new job"), Signals{})

	tr := m.Advance(client("I'm excited to work with you"), Signals{Farewell: true})
	if tr.EndCall {
		t.Error("client farewell must not end the call")
	}
	tr = m.Advance(agent("I'm excited to work with you"), Signals{Farewell: true})
	if !tr.EndCall {
		t.Error("expected agent farewell in closing to end the call")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	m := NewMachine()
	snap := m.Snapshot()
	snap.DetectedObjections[ObjectionNotReady] = true
	if m.Snapshot().DetectedObjections[ObjectionNotReady] {
		t.Error("snapshot mutation leaked into machine state")
	}
}

func TestParseObjectionType(t *testing.T) {
	tests := []struct {
		in   string
		want ObjectionType
		ok   bool
	}{
		{"listing_agent", ObjectionListingAgent, true},
		{" NOT_READY ", ObjectionNotReady, true},
		{"price", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseObjectionType(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseObjectionType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseSpeaker(t *testing.T) {
	if s, err := ParseSpeaker("Lead"); err != nil || s != SpeakerClient {
		t.Errorf("expected client, got %q %v", s, err)
	}
	if s, err := ParseSpeaker("agent"); err != nil || s != SpeakerAgent {
		t.Errorf("expected agent, got %q %v", s, err)
	}
	if _, err := ParseSpeaker("robot"); err == nil {
		t.Error("expected error for unknown speaker")
	}
}
