// Package suggest produces candidate lines for the agent from scripts, the
// model and a fixed offline set.
package suggest

import (
	"context"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
)

// Source tags which generator produced a candidate.
type Source string

const (
	SourceTemplate Source = "template"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Candidate types.
const (
	TypeGreeting   = "greeting"
	TypeObjection  = "objection"
	TypeQualifying = "qualifying"
	TypeClosing    = "closing"
	TypeDynamic    = "dynamic"
	TypeMarket     = "market"
	TypeFallback   = "fallback"
)

// Confidences assigned to template candidates.
const (
	ConfidenceGreeting   = 0.9
	ConfidenceObjection  = 0.85
	ConfidenceClosing    = 0.8
	ConfidenceQualifying = 0.75
	ConfidenceMarket     = 0.7
	ConfidenceAI         = 0.85
	ConfidenceAIFallback = 0.8
	ConfidenceFallback   = 0.6
)

// Candidate is one proposed line. Category, Scores and Score are filled in
// by the optimizer.
type Candidate struct {
	Text       string                     `json:"text"`
	Confidence float64                    `json:"confidence"`
	Type       string                     `json:"type"`
	Source     Source                     `json:"source"`
	Objection  conversation.ObjectionType `json:"objection,omitempty"`
	Variant    string                     `json:"variant,omitempty"`
	Category   string                     `json:"category,omitempty"`
	Scores     map[string]float64         `json:"scores,omitempty"`
	Score      float64                    `json:"score"`
	TrackingID string                     `json:"tracking_id,omitempty"`
}

// Request is everything a generator may draw on for one turn.
type Request struct {
	CallID        string
	Stage         conversation.Stage // effective stage, may be the objection overlay
	State         conversation.State
	Objection     conversation.ObjectionType
	Qualification qualify.State
	Needs         []string
	InterestLevel string
	History       []conversation.Utterance
	Vars          map[string]string
	ListPrice     float64
	Signals       signals.Context
}

// Generator never returns an error: a failing generator contributes nothing
// or its own fallback.
type Generator interface {
	Generate(ctx context.Context, req Request) []Candidate
}

func take(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
