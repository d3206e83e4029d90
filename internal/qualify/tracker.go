// Package qualify tracks how much of a lead's Area, Location needs and Money
// have been learned during a call.
package qualify

import (
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/detect"
)

// QualifiedThreshold is the completion at which a lead counts as qualified.
const QualifiedThreshold = 0.8

// Field is one qualification dimension. A nil Value means unknown.
type Field struct {
	Value      *string   `json:"value"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

func (f Field) Known() bool { return f.Value != nil }

// State is the per-call qualification state.
type State struct {
	Area          Field   `json:"area"`
	LocationNeeds Field   `json:"location_needs"`
	Money         Field   `json:"money"`
	Completion    float64 `json:"completion_percentage"`
	Qualified     bool    `json:"is_qualified"`
}

func (s *State) field(c detect.Category) *Field {
	switch c {
	case detect.CategoryArea:
		return &s.Area
	case detect.CategoryLocationNeeds:
		return &s.LocationNeeds
	case detect.CategoryMoney:
		return &s.Money
	}
	return nil
}

// Tracker applies qualification signals and produces questions and reports.
type Tracker struct {
	questions map[detect.Category]string
	now       func() time.Time
}

// DefaultQuestions are asked when a category is still unknown.
var DefaultQuestions = map[detect.Category]string{
	detect.CategoryMoney:         "What price range are you comfortable with?",
	detect.CategoryArea:          "Which neighborhoods or areas are you most interested in?",
	detect.CategoryLocationNeeds: "What's most important to you about the location, like schools, commute, or amenities?",
}

// NewTracker uses questions for NextQuestion; missing entries fall back to DefaultQuestions.
func NewTracker(questions map[detect.Category]string) *Tracker {
	q := make(map[detect.Category]string, len(DefaultQuestions))
	for k, v := range DefaultQuestions {
		q[k] = v
	}
	for k, v := range questions {
		if v != "" {
			q[k] = v
		}
	}
	return &Tracker{questions: q, now: time.Now}
}

// RecordSignal stores value when the field is unknown or confidence is
// strictly higher than what is held. Returns whether the state changed.
func (t *Tracker) RecordSignal(s *State, c detect.Category, value string, confidence float64) bool {
	f := s.field(c)
	if f == nil || value == "" {
		return false
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	if f.Known() && confidence <= f.Confidence {
		return false
	}
	v := value
	*f = Field{Value: &v, Confidence: confidence, Timestamp: t.now()}
	recompute(s)
	return true
}

// Apply records every match and returns the categories that changed.
func (t *Tracker) Apply(s *State, matches []detect.Match) []detect.Category {
	var changed []detect.Category
	for _, m := range matches {
		if t.RecordSignal(s, m.Category, m.Value, m.Confidence) {
			changed = append(changed, m.Category)
		}
	}
	return changed
}

func recompute(s *State) {
	filled := 0
	for _, f := range []Field{s.Area, s.LocationNeeds, s.Money} {
		if f.Known() {
			filled++
		}
	}
	s.Completion = float64(filled) / 3
	s.Qualified = s.Completion >= QualifiedThreshold
}

// priority is the order missing categories are asked about.
var priority = []detect.Category{detect.CategoryMoney, detect.CategoryArea, detect.CategoryLocationNeeds}

// Missing returns unknown categories in question priority order.
func Missing(s State) []detect.Category {
	var out []detect.Category
	for _, c := range priority {
		if !s.field(c).Known() {
			out = append(out, c)
		}
	}
	return out
}

// NextQuestion returns the question for the highest priority unknown
// category, or "" when everything is known.
func (t *Tracker) NextQuestion(s State) string {
	missing := Missing(s)
	if len(missing) == 0 {
		return ""
	}
	return t.questions[missing[0]]
}

// Report is the qualification progress summary.
type Report struct {
	Completion   float64           `json:"completion_percentage"`
	Qualified    bool              `json:"is_qualified"`
	Collected    map[string]string `json:"collected_info"`
	Missing      []string          `json:"missing_elements"`
	NextQuestion string            `json:"next_question,omitempty"`
	NextSteps    []string          `json:"next_steps"`
}

func (t *Tracker) Report(s State) Report {
	r := Report{
		Completion:   s.Completion,
		Qualified:    s.Qualified,
		Collected:    make(map[string]string),
		Missing:      []string{},
		NextQuestion: t.NextQuestion(s),
		NextSteps:    []string{},
	}
	for _, c := range detect.Categories {
		if f := s.field(c); f.Known() {
			r.Collected[string(c)] = *f.Value
		}
	}
	for _, c := range Missing(s) {
		r.Missing = append(r.Missing, string(c))
		r.NextSteps = append(r.NextSteps, "Ask: "+t.questions[c])
	}
	if s.Qualified {
		r.NextSteps = append(r.NextSteps, "Lead is qualified: move to scheduling a showing")
	}
	return r
}
