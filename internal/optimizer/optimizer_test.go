package optimizer

import (
	"math"
	"testing"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/signals"
	"github.com/MikeSquared-Agency/almcoach/internal/suggest"
)

func cand(text string, conf float64) suggest.Candidate {
	return suggest.Candidate{Text: text, Confidence: conf, Source: suggest.SourceTemplate}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, s := range DefaultScorers() {
		sum += s.Weight()
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
}

func TestScorers_NeutralWithoutSignals(t *testing.T) {
	c := cand("When would you like to see the home?", 0.8)
	for _, s := range DefaultScorers() {
		if got := s.Score(c, Input{}); got != Neutral {
			t.Errorf("%s: expected neutral %v, got %v", s.Name(), Neutral, got)
		}
	}
}

func TestScorers_WithSignals(t *testing.T) {
	hot := &signals.Market{MarketStatus: signals.StatusSellers, DaysOnMarket: 3}
	tests := []struct {
		name   string
		scorer Scorer
		text   string
		in     Input
		want   float64
	}{
		{
			name:   "market terms and data",
			scorer: MarketRelevance{},
			text:   "The median price is $500k, up 3% and homes sell in 15 days",
			in:     Input{Signals: signals.Context{Market: hot}},
			want:   2.0/9*0.4 + 0.2 + 0.2 + 0.2,
		},
		{
			name:   "hesitant lead wants reassurance",
			scorer: EmotionalMatch{},
			text:   "I understand, let me help you with that",
			in:     Input{Signals: signals.Context{Voice: &signals.Voice{EmotionScores: map[string]float64{"hesitant": 0.9}}}},
			want:   3.0 / 5,
		},
		{
			name:   "confident lead wants directness",
			scorer: EmotionalMatch{},
			text:   "Absolutely, this is definitely worth seeing",
			in:     Input{Signals: signals.Context{Voice: &signals.Voice{EmotionScores: map[string]float64{"hesitant": 0.1, "confident": 0.9}}}},
			want:   2.0 / 4,
		},
		{
			name:   "seller's market urgency boosted for fresh listing",
			scorer: Urgency{},
			text:   "Homes here go fast, can we see it today?",
			in:     Input{Signals: signals.Context{Market: hot}},
			want:   2.0 / 8 * 1.2,
		},
		{
			name:   "unknown market status stays neutral",
			scorer: Urgency{},
			text:   "Hello",
			in:     Input{Signals: signals.Context{Market: &signals.Market{MarketStatus: signals.StatusBalanced, DaysOnMarket: 30}}},
			want:   Neutral,
		},
		{
			name:   "engagement boosted when quiet",
			scorer: Engagement{},
			text:   "I hear you, would you like to tour it?",
			in:     Input{Signals: signals.Context{Dynamics: &signals.Dynamics{EngagementScore: 0.2}}},
			want:   1,
		},
		{
			name:   "engagement question only",
			scorer: Engagement{},
			text:   "Tomorrow?",
			in:     Input{Signals: signals.Context{Dynamics: &signals.Dynamics{EngagementScore: 0.9}}},
			want:   0.4,
		},
		{
			name:   "objection keywords",
			scorer: ObjectionHandling{},
			text:   "We can do a virtual tour over video",
			in:     Input{Objections: []conversation.ObjectionType{conversation.ObjectionOutOfTown}},
			want:   2.0 / 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.scorer.Score(cand(tt.text, 0.8), tt.in)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestObjectionHandling_TaggedHandlerScoresOne(t *testing.T) {
	c := cand("anything", 0.85)
	c.Objection = conversation.ObjectionListingAgent
	in := Input{Objections: []conversation.ObjectionType{conversation.ObjectionListingAgent}}
	if got := (ObjectionHandling{}).Score(c, in); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestRank_EmptyInput(t *testing.T) {
	o := New(0)
	if got := o.Rank(nil, Input{}); len(got) != 0 {
		t.Errorf("expected nothing, got %+v", got)
	}
	if got := o.Rank([]suggest.Candidate{{Text: "   "}}, Input{}); len(got) != 0 {
		t.Errorf("expected blank text filtered, got %+v", got)
	}
}

func TestRank_NeverEmptyAndCapped(t *testing.T) {
	o := New(3)
	in := []suggest.Candidate{
		cand("When would you like to see it?", 0.9),
		cand("Would tomorrow work for a tour?", 0.8),
		cand("Are mornings better for you?", 0.7),
		cand("What neighborhoods do you like?", 0.6),
		cand("Thanks so much.", 0.5),
	}
	got := o.Rank(in, Input{})
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if len(o.Rank(in[:1], Input{})) != 1 {
		t.Error("expected single candidate to survive")
	}
}

func TestRank_TieBreaksOnConfidence(t *testing.T) {
	o := New(3)
	got := o.Rank([]suggest.Candidate{
		cand("Thanks so much.", 0.5),
		cand("Let us set something up.", 0.9),
	}, Input{})
	if got[0].Text != "Let us set something up." {
		t.Errorf("expected higher confidence first, got %q", got[0].Text)
	}
	if math.Abs(got[0].Score-Neutral) > 1e-9 {
		t.Errorf("expected neutral total score, got %v", got[0].Score)
	}
	if len(got[0].Scores) != 5 {
		t.Errorf("expected per-axis scores, got %v", got[0].Scores)
	}
}

func TestRank_ClampsConfidence(t *testing.T) {
	got := New(3).Rank([]suggest.Candidate{cand("Hello there.", 7), cand("Goodbye now.", math.NaN())}, Input{})
	for _, c := range got {
		if c.Confidence < 0 || c.Confidence > 1 {
			t.Errorf("confidence not clamped: %v", c.Confidence)
		}
	}
}

func TestRank_Diversity(t *testing.T) {
	o := New(3)
	got := o.Rank([]suggest.Candidate{
		cand("When would you like to see it?", 0.9),
		cand("Would tomorrow work for you?", 0.85),
		cand("Are mornings better for you?", 0.8),
		cand("Let me schedule a showing for you.", 0.7),
	}, Input{})
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[2].Category != CategoryAppointment {
		t.Errorf("expected third slot forced to a new category, got %+v", got[2])
	}
}

func TestRank_DiversityBackfills(t *testing.T) {
	got := New(3).Rank([]suggest.Candidate{
		cand("When would you like to see it?", 0.9),
		cand("Would tomorrow work for you?", 0.85),
		cand("Are mornings better for you?", 0.8),
	}, Input{})
	if len(got) != 3 {
		t.Errorf("expected backfill to 3 when no variety exists, got %d", len(got))
	}
}

func TestDedupe(t *testing.T) {
	got := New(3).Rank([]suggest.Candidate{
		cand("When would you like to go see the property?", 0.9),
		cand("when would you like to go see the property", 0.8),
		cand("What brings you to the area?", 0.7),
	}, Input{})
	if len(got) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %+v", got)
	}
	if got[0].Confidence != 0.9 {
		t.Error("expected higher ranked duplicate kept")
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"a b c", "a b c", 1},
		{"a b", "c d", 0},
		{"Hello, world!", "hello world", 1},
		{"a b c d", "a b c e", 3.0 / 5},
	}
	for _, tt := range tests {
		if got := Jaccard(Tokens(tt.a), Tokens(tt.b)); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	tests := map[string]string{
		"When works?":               CategoryQuestion,
		"Let me show you the home.": CategoryAppointment,
		"The market is strong.":     CategoryMarketInfo,
		"I understand completely.":  CategoryEmpathy,
		"Thank you for your time.":  CategoryOther,
	}
	for text, want := range tests {
		if got := Categorize(text); got != want {
			t.Errorf("Categorize(%q) = %s, want %s", text, got, want)
		}
	}
}
