// Package performance keeps running success rates for served suggestions
// and flags coaching areas that need work.
package performance

import (
	"sort"
	"sync"
	"time"
)

// MinUsesForRanking is the number of times a suggestion must be served
// before it is ranked in Top.
const MinUsesForRanking = 5

// Improvement thresholds.
const (
	objectionHandledTarget = 0.8
	usageTarget            = 0.6
	qualifyingTarget       = 3.0
)

// Improvement areas.
const (
	AreaObjectionHandling   = "objection_handling"
	AreaSuggestionRelevance = "suggestion_relevance"
	AreaNeedDiscovery       = "need_discovery"
)

// Stats is the usage record for one suggestion text.
type Stats struct {
	Text        string    `json:"text"`
	Type        string    `json:"type"`
	Uses        int       `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	LastUsed    time.Time `json:"last_used,omitempty"`
}

// UpdateRate folds one outcome into a running success rate over uses
// observations, uses counting the new one.
func UpdateRate(rate float64, uses int, used bool) float64 {
	if uses <= 0 {
		return 0
	}
	prev := rate * float64(uses-1)
	if used {
		prev++
	}
	return clamp(prev / float64(uses))
}

// Outcome is one served suggestion at the end of a call.
type Outcome struct {
	Text string
	Type string
	Used bool
}

// CallTotals are the per-call counts improvement areas are judged on.
type CallTotals struct {
	Objections        int
	ObjectionsHandled int
	Served            int
	Used              int
	QualifyingUsed    int
}

// Tracker aggregates outcomes across calls. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	stats  map[string]*Stats
	totals CallTotals
	calls  int
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*Stats), now: time.Now}
}

// RecordCall folds a finished call into the tracker.
func (t *Tracker) RecordCall(outcomes []Outcome, totals CallTotals) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, o := range outcomes {
		st, ok := t.stats[o.Text]
		if !ok {
			st = &Stats{Text: o.Text, Type: o.Type}
			t.stats[o.Text] = st
		}
		st.Uses++
		st.SuccessRate = UpdateRate(st.SuccessRate, st.Uses, o.Used)
		if o.Used {
			st.LastUsed = now
		}
	}

	t.calls++
	t.totals.Objections += totals.Objections
	t.totals.ObjectionsHandled += totals.ObjectionsHandled
	t.totals.Served += totals.Served
	t.totals.Used += totals.Used
	t.totals.QualifyingUsed += totals.QualifyingUsed
}

// Top returns up to n suggestions served at least MinUsesForRanking times,
// best success rate first, then most used.
func (t *Tracker) Top(n int) []Stats {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Stats
	for _, st := range t.stats {
		if st.Uses >= MinUsesForRanking {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].Text < out[j].Text
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary is the aggregate view served on the status endpoint.
type Summary struct {
	Calls            int      `json:"calls"`
	UsageRate        float64  `json:"suggestion_usage_rate"`
	ObjectionHandled float64  `json:"objection_handle_rate"`
	ImprovementAreas []string `json:"improvement_areas"`
	Top              []Stats  `json:"top_suggestions"`
}

func (t *Tracker) Summary(top int) Summary {
	if t == nil {
		return Summary{ImprovementAreas: []string{}}
	}
	t.mu.Lock()
	totals, calls := t.totals, t.calls
	t.mu.Unlock()

	return Summary{
		Calls:            calls,
		UsageRate:        ratio(totals.Used, totals.Served),
		ObjectionHandled: ratio(totals.ObjectionsHandled, totals.Objections),
		ImprovementAreas: ImprovementAreas(totals, calls),
		Top:              t.Top(top),
	}
}

// ImprovementAreas names what the agents should work on given totals over
// calls. No calls means nothing to judge.
func ImprovementAreas(totals CallTotals, calls int) []string {
	areas := []string{}
	if calls == 0 {
		return areas
	}
	if totals.Objections > 0 && ratio(totals.ObjectionsHandled, totals.Objections) < objectionHandledTarget {
		areas = append(areas, AreaObjectionHandling)
	}
	if totals.Served > 0 && ratio(totals.Used, totals.Served) < usageTarget {
		areas = append(areas, AreaSuggestionRelevance)
	}
	if float64(totals.QualifyingUsed)/float64(calls) < qualifyingTarget {
		areas = append(areas, AreaNeedDiscovery)
	}
	return areas
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
