// Package signals holds the optional external context a turn can carry.
// Each kind is independently optional; nil means absent and scorers treat
// an absent signal as neutral.
package signals

// Voice is prosody analysis of the client's speech.
type Voice struct {
	EmotionScores map[string]float64 `json:"emotion_scores"`
	SpeakingRate  float64            `json:"speaking_rate"`
}

// Emotion returns the named score, 0 when missing.
func (v *Voice) Emotion(name string) float64 {
	if v == nil {
		return 0
	}
	return v.EmotionScores[name]
}

// Market describes the local market around the listing.
type Market struct {
	Zip             string    `json:"zip,omitempty"`
	MedianPrice     float64   `json:"median_price"`
	DaysOnMarket    int       `json:"days_on_market"`
	PriceTrend      float64   `json:"price_trend"`
	SimilarListings int       `json:"similar_listings"`
	CompPrices      []float64 `json:"comp_prices,omitempty"`
	MarketStatus    string    `json:"market_status"`
}

const (
	StatusSellers  = "seller's market"
	StatusBuyers   = "buyer's market"
	StatusBalanced = "balanced market"
)

// Dynamics summarises turn-taking on the call.
type Dynamics struct {
	TurnTakingBalance float64 `json:"turn_taking_balance"`
	InterruptionCount int     `json:"interruption_count"`
	SilenceRatio      float64 `json:"silence_ratio"`
	EngagementScore   float64 `json:"engagement_score"`
}

// Context bundles the optional signals for one turn.
type Context struct {
	Voice    *Voice    `json:"voice_metrics,omitempty"`
	Market   *Market   `json:"market_insights,omitempty"`
	Dynamics *Dynamics `json:"conversation_dynamics,omitempty"`
}
