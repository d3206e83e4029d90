// Package optimizer scores, dedupes and diversifies the pooled candidates
// for a turn.
package optimizer

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/almcoach/internal/suggest"
)

const (
	DefaultMax          = 3
	DuplicateSimilarity = 0.8
	MaxPerCategory      = 2
)

// Categories used for diversity.
const (
	CategoryQuestion    = "question"
	CategoryAppointment = "appointment"
	CategoryMarketInfo  = "market_info"
	CategoryEmpathy     = "empathy"
	CategoryOther       = "other"
)

type Optimizer struct {
	scorers []Scorer
	max     int
}

// New uses DefaultScorers when scorers is empty. max below 1 means DefaultMax.
func New(max int, scorers ...Scorer) *Optimizer {
	if max < 1 {
		max = DefaultMax
	}
	if len(scorers) == 0 {
		scorers = DefaultScorers()
	}
	return &Optimizer{scorers: scorers, max: max}
}

// Rank returns at most max candidates, best first. It never returns an
// empty slice when cands holds at least one candidate with text.
func (o *Optimizer) Rank(cands []suggest.Candidate, in Input) []suggest.Candidate {
	valid := make([]suggest.Candidate, 0, len(cands))
	for _, c := range cands {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		c.Confidence = clamp(c.Confidence)
		o.score(&c, in)
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Score != valid[j].Score {
			return valid[i].Score > valid[j].Score
		}
		return valid[i].Confidence > valid[j].Confidence
	})

	return o.diversify(Dedupe(valid))
}

func (o *Optimizer) score(c *suggest.Candidate, in Input) {
	c.Scores = make(map[string]float64, len(o.scorers))
	total := 0.0
	for _, s := range o.scorers {
		v := clamp(s.Score(*c, in))
		c.Scores[s.Name()] = v
		total += s.Weight() * v
	}
	c.Score = total
}

// Dedupe keeps the first of any pair whose token sets are more than 80%
// similar. cands must already be in rank order.
func Dedupe(cands []suggest.Candidate) []suggest.Candidate {
	out := make([]suggest.Candidate, 0, len(cands))
	kept := make([]map[string]struct{}, 0, len(cands))
	for _, c := range cands {
		toks := Tokens(c.Text)
		dup := false
		for _, k := range kept {
			if Jaccard(toks, k) > DuplicateSimilarity {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, toks)
		out = append(out, c)
	}
	return out
}

// diversify fills the output preferring categories that are not yet at
// MaxPerCategory; if variety runs out, the remaining slots take the next
// best candidates regardless of category.
func (o *Optimizer) diversify(cands []suggest.Candidate) []suggest.Candidate {
	out := make([]suggest.Candidate, 0, o.max)
	counts := make(map[string]int)
	var skipped []suggest.Candidate
	for _, c := range cands {
		if len(out) == o.max {
			break
		}
		c.Category = Categorize(c.Text)
		if counts[c.Category] >= MaxPerCategory {
			skipped = append(skipped, c)
			continue
		}
		counts[c.Category]++
		out = append(out, c)
	}
	for _, c := range skipped {
		if len(out) == o.max {
			break
		}
		out = append(out, c)
	}
	return out
}

// Categorize buckets a line by keyword.
func Categorize(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "?"):
		return CategoryQuestion
	case containsAny(t, []string{"schedule", "tour", "visit", "show"}):
		return CategoryAppointment
	case containsAny(t, []string{"market", "price", "value", "trend"}):
		return CategoryMarketInfo
	case containsAny(t, []string{"understand", "hear", "appreciate"}):
		return CategoryEmpathy
	}
	return CategoryOther
}

// Tokens returns the lowercase whitespace-separated words of text with
// surrounding punctuation removed.
func Tokens(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b|. Two empty sets are identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return capOne(v)
}

// Max is the number of suggestions Rank returns at most.
func (o *Optimizer) Max() int { return o.max }
