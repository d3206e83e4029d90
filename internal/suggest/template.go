package suggest

import (
	"context"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/market"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
)

// TemplateGenerator draws stage and objection keyed lines from the script
// library and fills their placeholders.
type TemplateGenerator struct {
	lib     *scripts.Library
	tracker *qualify.Tracker
	perTurn int
}

func NewTemplateGenerator(lib *scripts.Library, tracker *qualify.Tracker) *TemplateGenerator {
	return &TemplateGenerator{lib: lib, tracker: tracker, perTurn: 3}
}

func (g *TemplateGenerator) Generate(_ context.Context, req Request) []Candidate {
	var out []Candidate
	add := func(text, typ string, conf float64) {
		if text == "" {
			return
		}
		out = append(out, Candidate{
			Text:       scripts.Fill(text, req.Vars),
			Confidence: conf,
			Type:       typ,
			Source:     SourceTemplate,
		})
	}

	if req.Stage == conversation.StageObjectionHandling {
		for _, v := range g.lib.ObjectionHandlers(req.Objection) {
			out = append(out, Candidate{
				Text:       scripts.Fill(v.Text, req.Vars),
				Confidence: ConfidenceObjection,
				Type:       TypeObjection,
				Source:     SourceTemplate,
				Objection:  req.Objection,
				Variant:    v.Name,
			})
		}
		return out
	}

	switch req.Stage {
	case conversation.StageOpening:
		add(g.lib.Opening[openingKey(req.Vars)], TypeGreeting, ConfidenceGreeting)
		for _, q := range take(g.lib.ALM["appointment"], 1) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
	case conversation.StageAppointment:
		for _, q := range take(g.lib.ALM["appointment"], g.perTurn) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
	case conversation.StageLocation:
		for _, q := range take(g.lib.ALM["location"], 2) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
		for _, q := range take(g.tracker.Suggestions(req.Qualification), 1) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
		for _, line := range take(market.Phrases(req.Signals.Market), 1) {
			add(line+".", TypeMarket, ConfidenceMarket)
		}
	case conversation.StageMotivation:
		for _, q := range take(g.lib.ALM["motivation"], 2) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
		for _, q := range take(g.tracker.Suggestions(req.Qualification), 1) {
			add(q, TypeQualifying, ConfidenceQualifying)
		}
	case conversation.StageClosing:
		key := "nurture_lead"
		if req.State.AppointmentSet {
			key = "appointment_set"
		}
		add(g.lib.Closing[key], TypeClosing, ConfidenceClosing)
		for _, q := range take(g.lib.ALM["confirmation"], 1) {
			add(q, TypeClosing, ConfidenceClosing)
		}
	}
	return out
}

// openingKey picks the opening variant from what is known about the lead.
func openingKey(vars map[string]string) string {
	named := vars["lead_name"] != ""
	scheduled := vars["showing_date"] != ""
	switch {
	case named && scheduled:
		return "named_scheduled"
	case scheduled:
		return "unnamed_scheduled"
	case named:
		return "named_no_tour"
	}
	return "unnamed_no_tour"
}
