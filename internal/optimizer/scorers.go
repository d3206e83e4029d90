package optimizer

import (
	"strings"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
	"github.com/MikeSquared-Agency/almcoach/internal/suggest"
)

// Neutral is the score an axis gives when its signal is absent.
const Neutral = 0.5

// Input is the turn context the scorers may consult.
type Input struct {
	Signals    signals.Context
	Objections []conversation.ObjectionType
}

// Scorer is one ranking axis. Score must be deterministic and within [0,1].
type Scorer interface {
	Name() string
	Weight() float64
	Score(c suggest.Candidate, in Input) float64
}

// DefaultScorers returns the five axes with weights summing to 1.
func DefaultScorers() []Scorer {
	return []Scorer{
		MarketRelevance{},
		EmotionalMatch{},
		Urgency{},
		Engagement{},
		ObjectionHandling{},
	}
}

func countTerms(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func containsAny(text string, terms []string) bool {
	return countTerms(text, terms) > 0
}

func ratio(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	return float64(countTerms(text, terms)) / float64(len(terms))
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func capOne(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

var marketTerms = []string{"market", "price", "value", "trend", "similar", "median", "comparison", "inventory", "days on market"}

// MarketRelevance rewards lines that use market data.
type MarketRelevance struct{}

func (MarketRelevance) Name() string    { return "market_relevance" }
func (MarketRelevance) Weight() float64 { return 0.25 }

func (MarketRelevance) Score(c suggest.Candidate, in Input) float64 {
	if in.Signals.Market == nil {
		return Neutral
	}
	t := strings.ToLower(c.Text)
	score := ratio(t, marketTerms)*0.4 +
		flag(strings.Contains(t, "$") || strings.Contains(t, "dollar"))*0.2 +
		flag(strings.Contains(t, "%") || strings.Contains(t, "percent"))*0.2 +
		flag(strings.Contains(t, "days") || strings.Contains(t, "quickly"))*0.2
	return capOne(score)
}

var (
	reassuringTerms = []string{"understand", "appreciate", "help you", "let me", "share"}
	confidentTerms  = []string{"definitely", "absolutely", "certainly", "great opportunity"}
	interestTerms   = []string{"unique", "special", "perfect", "ideal", "exclusive"}
)

const (
	hesitationThreshold = 0.6
	confidenceThreshold = 0.7
)

// EmotionalMatch prefers reassurance for a hesitant lead and directness for
// a confident one.
type EmotionalMatch struct{}

func (EmotionalMatch) Name() string    { return "emotional_match" }
func (EmotionalMatch) Weight() float64 { return 0.25 }

func (EmotionalMatch) Score(c suggest.Candidate, in Input) float64 {
	v := in.Signals.Voice
	if v == nil {
		return Neutral
	}
	t := strings.ToLower(c.Text)
	score := func(name string) float64 {
		if s, ok := v.EmotionScores[name]; ok {
			return s
		}
		return Neutral
	}
	switch {
	case score("hesitant") > hesitationThreshold:
		return capOne(ratio(t, reassuringTerms))
	case score("confident") > confidenceThreshold:
		return capOne(ratio(t, confidentTerms))
	}
	return capOne(ratio(t, interestTerms))
}

var urgencyTerms = map[string][]string{
	signals.StatusSellers: {"quickly", "fast", "won't last", "competitive", "multiple", "soon", "today", "now"},
	signals.StatusBuyers:  {"opportunity", "advantage", "favorable", "potential", "negotiate", "value"},
}

// Urgency matches the line's pressure to the market. Fresh listings
// (under a week on market) get a boost.
type Urgency struct{}

func (Urgency) Name() string    { return "urgency" }
func (Urgency) Weight() float64 { return 0.20 }

func (Urgency) Score(c suggest.Candidate, in Input) float64 {
	m := in.Signals.Market
	if m == nil {
		return Neutral
	}
	score := Neutral
	if terms := urgencyTerms[m.MarketStatus]; len(terms) > 0 {
		score = ratio(strings.ToLower(c.Text), terms)
	}
	if m.DaysOnMarket < 7 {
		score *= 1.2
	}
	return capOne(score)
}

var (
	invitationTerms     = []string{"would you", "could you", "what if", "how about", "tell me", "share with me"}
	acknowledgmentTerms = []string{"understand", "hear", "appreciate", "interesting"}
)

const engagementThreshold = 0.5

// Engagement rewards questions, invitations and acknowledgment, more so
// when the lead has gone quiet.
type Engagement struct{}

func (Engagement) Name() string    { return "engagement" }
func (Engagement) Weight() float64 { return 0.15 }

func (Engagement) Score(c suggest.Candidate, in Input) float64 {
	d := in.Signals.Dynamics
	if d == nil {
		return Neutral
	}
	t := strings.ToLower(c.Text)
	score := flag(strings.Contains(t, "?"))*0.4 +
		flag(containsAny(t, invitationTerms))*0.3 +
		flag(containsAny(t, acknowledgmentTerms))*0.3
	if d.EngagementScore < engagementThreshold {
		score *= 1.2
	}
	return capOne(score)
}

var objectionTerms = map[conversation.ObjectionType][]string{
	conversation.ObjectionListingAgent:     {"represent", "colleague", "show you", "best interest", "your agent"},
	conversation.ObjectionWorkingWithAgent: {"understand", "represent", "your agent", "help", "offer"},
	conversation.ObjectionQuickQuestion:    {"happy to help", "information", "get back", "know", "question"},
	conversation.ObjectionPendingProperty:  {"similar", "backup", "other", "options", "show you"},
	conversation.ObjectionOutOfTown:        {"virtual", "video", "facetime", "zoom", "on your behalf"},
	conversation.ObjectionNotReady:         {"understand", "when the time", "timeline", "flexible", "search"},
}

// ObjectionHandling scores how directly a line answers the objections
// raised on the call. A handler written for one of them scores 1.
type ObjectionHandling struct{}

func (ObjectionHandling) Name() string    { return "objection_handling" }
func (ObjectionHandling) Weight() float64 { return 0.15 }

func (ObjectionHandling) Score(c suggest.Candidate, in Input) float64 {
	if len(in.Objections) == 0 {
		return Neutral
	}
	t := strings.ToLower(c.Text)
	best, scored := 0.0, false
	for _, o := range in.Objections {
		if c.Objection != "" && c.Objection == o {
			return 1
		}
		terms := objectionTerms[o]
		if len(terms) == 0 {
			continue
		}
		scored = true
		if r := ratio(t, terms); r > best {
			best = r
		}
	}
	if !scored {
		return Neutral
	}
	return capOne(best)
}
