// Package detect holds the lexical detectors run on every utterance.
// Detectors are case-insensitive substring and regex matchers; they never
// fail a turn.
package detect

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
)

type objectionRule struct {
	objection conversation.ObjectionType
	anyOf     []string
	allOf     []string
}

// Checked in order; the first rule that matches wins.
var objectionRules = []objectionRule{
	{objection: conversation.ObjectionListingAgent, anyOf: []string{"listing agent", "seller's agent", "sellers agent"}},
	{objection: conversation.ObjectionWorkingWithAgent, allOf: []string{"working with", "agent"}},
	{objection: conversation.ObjectionQuickQuestion, anyOf: []string{"quick question", "just wondering"}},
	{objection: conversation.ObjectionPendingProperty, anyOf: []string{"pending", "under contract"}},
	{objection: conversation.ObjectionOutOfTown, anyOf: []string{"out of town", "not in town"}},
	{objection: conversation.ObjectionNotReady, anyOf: []string{"not ready", "too soon"}},
}

// DefaultAvoidPhrases are topics an agent should not raise on a first call.
var DefaultAvoidPhrases = []string{
	"not available",
	"already sold",
	"need pre-approval",
	"bad condition",
	"major issues",
	"act quickly",
	"losing the property",
	"market conditions",
	"financing",
	"credit score",
	"down payment",
	"let me check the mls",
	"i'm not available",
	"can't do that time",
}

// DefaultBadNews maps a bad-news topic to the phrases that reveal it.
var DefaultBadNews = map[string][]string{
	"property_unavailable":  {"property unavailable", "no longer available", "off the market", "already sold"},
	"price_increase":        {"price increase", "price went up", "raised the price"},
	"property_issues":       {"property issues", "foundation issue", "needs a new roof", "water damage"},
	"preapproval_required":  {"preapproval required", "pre-approval required", "need to be pre-approved", "need pre-approval"},
	"market_negative":       {"market conditions negative", "market is bad", "market is terrible", "prices are dropping"},
	"scheduling_conflict":   {"scheduling conflict", "i'm booked", "can't do that time", "i'm not available"},
	"property_defects":      {"property defects", "defect", "mold"},
	"listing_mistakes":      {"listing mistake", "listing was wrong", "listing is wrong"},
	"urgent_action":         {"urgent action required", "act quickly", "act fast", "before it's gone"},
}

var (
	introPhrases     = []string{"this is", "my name is", "i'm calling from", "calling from"}
	brokerageTerms   = []string{"realty", "real estate", "realtors", "brokerage", "properties", "homes"}
	commitmentRegex  = regexp.MustCompile(`(?i)\b(yes|yeah|yep|sure|okay|ok|tomorrow|morning|afternoon|evening|time)\b`)
	farewellPhrases  = []string{"excited to work with you", "look forward to working with you", "looking forward to working with you"}
	agentSpeechHints = []string{"this is", "my name is", "realty", "real estate", "i'd love to show", "when would you like", "schedule a", "tour"}
)

// Detector runs the lexical detectors. The zero value is not usable; call New.
type Detector struct {
	avoid     []string
	badNews   map[string][]string
	brokerage string
	logger    *slog.Logger
}

// Options extends the default phrase tables.
type Options struct {
	AvoidPhrases []string
	BadNews      map[string][]string
	Brokerage    string
}

func New(opts Options, logger *slog.Logger) *Detector {
	avoid := append([]string{}, DefaultAvoidPhrases...)
	for _, p := range opts.AvoidPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !contains(avoid, p) {
			avoid = append(avoid, p)
		}
	}
	badNews := make(map[string][]string, len(DefaultBadNews)+len(opts.BadNews))
	for k, v := range DefaultBadNews {
		badNews[k] = v
	}
	for k, v := range opts.BadNews {
		badNews[k] = append(badNews[k], v...)
	}
	return &Detector{
		avoid:     avoid,
		badNews:   badNews,
		brokerage: strings.ToLower(strings.TrimSpace(opts.Brokerage)),
		logger:    logger,
	}
}

// guard turns a panic inside a detector into "no signal".
func (d *Detector) guard(name string) {
	if r := recover(); r != nil {
		d.logger.Warn("detector failed", "detector", name, "error", fmt.Sprint(r))
	}
}

func normalize(text string) string {
	text = strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// Objection returns the first objection type whose rule matches text.
func (d *Detector) Objection(text string) (o conversation.ObjectionType, ok bool) {
	defer d.guard("objection")
	return Objection(text)
}

// Objection is the stateless form of Detector.Objection.
func Objection(text string) (conversation.ObjectionType, bool) {
	t := normalize(text)
	for _, rule := range objectionRules {
		if len(rule.allOf) > 0 && containsAll(t, rule.allOf) {
			return rule.objection, true
		}
		if len(rule.anyOf) > 0 && containsAny(t, rule.anyOf) {
			return rule.objection, true
		}
	}
	return "", false
}

// AvoidPhrases returns one warning per avoid phrase present in text.
func (d *Detector) AvoidPhrases(text string) (warnings []string) {
	defer d.guard("avoid_phrases")
	t := normalize(text)
	for _, p := range d.avoid {
		if strings.Contains(t, p) {
			warnings = append(warnings, fmt.Sprintf("Avoid mentioning '%s' during the first call", p))
		}
	}
	return warnings
}

// BadNews returns the bad-news topics text touches, in sorted order.
func (d *Detector) BadNews(text string) (topics []string) {
	defer d.guard("bad_news")
	return badNewsTopics(normalize(text), d.badNews)
}

// SelfIntroduction reports an agent introducing themselves with their
// brokerage. brokerage is the call's own brokerage name and may be empty;
// the detector's configured brokerage and generic terms also count.
func (d *Detector) SelfIntroduction(text, brokerage string) (ok bool) {
	defer d.guard("self_introduction")
	t := normalize(text)
	if !containsAny(t, introPhrases) {
		return false
	}
	for _, name := range []string{normalize(strings.TrimSpace(brokerage)), d.brokerage} {
		if name != "" && strings.Contains(t, name) {
			return true
		}
	}
	return containsAny(t, brokerageTerms)
}

// Commitment reports a positive or scheduling keyword.
func (d *Detector) Commitment(text string) (ok bool) {
	defer d.guard("commitment")
	return commitmentRegex.MatchString(text)
}

// Farewell reports the agent's closing line.
func (d *Detector) Farewell(text string) (ok bool) {
	defer d.guard("farewell")
	return containsAny(normalize(text), farewellPhrases)
}

// Signals bundles the detector results the stage machine needs for a call
// placed on behalf of brokerage.
func (d *Detector) Signals(u conversation.Utterance, brokerage string) conversation.Signals {
	var sig conversation.Signals
	if o, ok := d.Objection(u.Text); ok {
		sig.Objection = o
	}
	sig.SelfIntroduction = d.SelfIntroduction(u.Text, brokerage)
	sig.Commitment = d.Commitment(u.Text)
	sig.Farewell = d.Farewell(u.Text)
	return sig
}

// GuessSpeaker is the fallback speaker heuristic for audio without a hint.
func GuessSpeaker(text string) conversation.Speaker {
	if containsAny(normalize(text), agentSpeechHints) {
		return conversation.SpeakerAgent
	}
	return conversation.SpeakerClient
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func containsAll(text string, subs []string) bool {
	for _, s := range subs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
