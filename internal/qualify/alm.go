package qualify

import (
	"fmt"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
)

// Priority is the ALM call-flow focus: appointment first, then location,
// then motivation, then confirming the appointment.
type Priority string

const (
	PriorityAppointment  Priority = "appointment"
	PriorityLocation     Priority = "location"
	PriorityMotivation   Priority = "motivation"
	PriorityConfirmation Priority = "confirmation"
)

// CurrentPriority derives the ALM focus from the stage flags.
func CurrentPriority(s conversation.State) Priority {
	switch {
	case !s.AppointmentSet:
		return PriorityAppointment
	case !s.LocationDiscussed:
		return PriorityLocation
	case !s.MotivationUncovered:
		return PriorityMotivation
	}
	return PriorityConfirmation
}

// ALMQuestions are the next-question texts per priority.
type ALMQuestions map[Priority]string

var DefaultALMQuestions = ALMQuestions{
	PriorityAppointment:  "Great, when would you like to go see the property?",
	PriorityLocation:     "Are there any other properties you've been looking at? I'd be happy to arrange tours for those as well.",
	PriorityMotivation:   "What interests you about this property?",
	PriorityConfirmation: "I'm excited to show you these properties! What time works best for your schedule?",
}

// ALMNextQuestion returns the question for the current ALM priority.
func ALMNextQuestion(s conversation.State, q ALMQuestions) string {
	p := CurrentPriority(s)
	if text, ok := q[p]; ok && text != "" {
		return text
	}
	return DefaultALMQuestions[p]
}

// ALMReport is the call-flow progress summary.
type ALMReport struct {
	CurrentPriority Priority        `json:"current_priority"`
	Flags           map[string]bool `json:"flags"`
	NextStep        string          `json:"next_step"`
	Completion      string          `json:"completion"`
}

func NewALMReport(s conversation.State, q ALMQuestions) ALMReport {
	done := 0
	flags := map[string]bool{
		"appointment_set":      s.AppointmentSet,
		"location_discussed":   s.LocationDiscussed,
		"motivation_uncovered": s.MotivationUncovered,
	}
	for _, v := range flags {
		if v {
			done++
		}
	}
	return ALMReport{
		CurrentPriority: CurrentPriority(s),
		Flags:           flags,
		NextStep:        ALMNextQuestion(s, q),
		Completion:      fmt.Sprintf("%d%% complete", done*100/3),
	}
}

const (
	transitionLine = "Just one more quick question before I show you some great properties that match what you're looking for..."
	transitionAt   = 0.66
)

var qualifiedLines = []string{
	"I have several properties that match your criteria. Would tomorrow or the next day work better for viewing?",
	"Based on what you've told me, I'd love to show you a few homes this week. Are mornings or afternoons better?",
}

// Suggestions returns qualification-driven lines: scheduling lines once the
// lead is qualified, otherwise questions for each missing category.
func (t *Tracker) Suggestions(s State) []string {
	if s.Qualified {
		return append([]string{}, qualifiedLines...)
	}
	var out []string
	for _, c := range Missing(s) {
		out = append(out, t.questions[c])
	}
	if s.Completion >= transitionAt {
		out = append(out, transitionLine)
	}
	return out
}
