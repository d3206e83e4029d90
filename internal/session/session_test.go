package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()

	s, err := r.Start("call-1", Profile{AgentName: "Mike"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.Start("call-1", Profile{}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if got, err := r.Get("call-1"); err != nil || got != s {
		t.Errorf("expected same session, got %v %v", got, err)
	}
	if !s.Alive() {
		t.Error("expected live session")
	}

	ended, err := r.End("call-1")
	if err != nil || ended != s {
		t.Fatalf("end: %v", err)
	}
	if s.Alive() {
		t.Error("expected ended session to report not alive")
	}
	if s.Context().Err() == nil {
		t.Error("expected context cancelled")
	}
	if _, err := r.Get("call-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.End("call-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second end, got %v", err)
	}
}

func TestRegistry_GetOrStart(t *testing.T) {
	r := NewRegistry()
	a, created, err := r.GetOrStart("x", Profile{})
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	b, created, _ := r.GetOrStart("x", Profile{})
	if created || a != b {
		t.Error("expected existing session returned")
	}
	if _, _, err := r.GetOrStart(" ", Profile{}); err == nil {
		t.Error("expected error for blank id")
	}
}

func TestRegistry_ConcurrentStarts(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("call-%d", i%10)
			s, _, err := r.GetOrStart(id, Profile{})
			if err != nil {
				t.Error(err)
				return
			}
			s.Lock()
			s.Record(conversation.Utterance{Text: "hi", Speaker: conversation.SpeakerClient})
			s.Unlock()
		}(i)
	}
	wg.Wait()

	if r.Len() != 10 {
		t.Fatalf("expected 10 sessions, got %d", r.Len())
	}
	total := 0
	for _, id := range r.IDs() {
		s, _ := r.Get(id)
		total += s.Snapshot().Turns
	}
	if total != 50 {
		t.Errorf("expected 50 recorded turns, got %d", total)
	}
}

func TestProfileVariables(t *testing.T) {
	p := Profile{
		AgentName: "Mike",
		Brokerage: "ABC Realty",
		LeadName:  "  ",
		Vars:      map[string]string{"brokerage": "XYZ Homes", "years_experience": "12"},
	}
	v := p.Variables()
	if v["agent_name"] != "Mike" || v["brokerage"] != "XYZ Homes" || v["years_experience"] != "12" {
		t.Errorf("unexpected vars %v", v)
	}
	if _, ok := v["lead_name"]; ok {
		t.Error("blank values must be omitted")
	}
}

func TestSessionState(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Start("c", Profile{})

	added := s.AddNeeds([]string{"3 bedrooms", "Big yard", ""})
	if len(added) != 2 {
		t.Fatalf("expected 2 new needs, got %v", added)
	}
	if again := s.AddNeeds([]string{"3 BEDROOMS"}); len(again) != 0 {
		t.Errorf("expected case-insensitive dedupe, got %v", again)
	}

	s.SetInterest("high")
	if s.Interest() != "high" {
		t.Errorf("unexpected interest %q", s.Interest())
	}

	s.UpdateSignals(&signals.Voice{SpeakingRate: 120}, nil)
	s.UpdateSignals(nil, &signals.Dynamics{EngagementScore: 0.4})
	v, d := s.Signals()
	if v == nil || d == nil || v.SpeakingRate != 120 {
		t.Errorf("expected latest signals retained, got %v %v", v, d)
	}

	snap := s.Snapshot()
	snap.Needs[0] = "mutated"
	if s.Needs()[0] != "3 bedrooms" {
		t.Error("snapshot must not alias session state")
	}
	if snap.State.Stage != conversation.StageOpening {
		t.Errorf("expected opening stage, got %s", snap.State.Stage)
	}
}

func TestServedAndUsed(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Start("c", Profile{})

	s.RecordServed("t1", Served{Text: "When works?", Source: "template"})
	s.RecordServed("t2", Served{Text: "Tomorrow?", Source: "ai"})

	sv, ok := s.MarkUsed("t2")
	if !ok || sv.Source != "ai" {
		t.Fatalf("expected t2 found, got %+v %v", sv, ok)
	}
	s.MarkUsed("t2")
	if _, ok := s.MarkUsed("nope"); ok {
		t.Error("expected unknown id to be reported")
	}

	snap := s.Snapshot()
	if snap.Served != 2 || snap.Used != 1 {
		t.Errorf("expected 2 served 1 used, got %d %d", snap.Served, snap.Used)
	}

	used := 0
	for _, sv := range s.ServedSuggestions() {
		if sv.Used {
			used++
			if sv.Text != "Tomorrow?" {
				t.Errorf("expected Tomorrow? marked used, got %q", sv.Text)
			}
		}
	}
	if len(s.ServedSuggestions()) != 2 || used != 1 {
		t.Errorf("expected 2 served with 1 used, got %+v", s.ServedSuggestions())
	}
}
