// Package market supplies the optional market-insight signal for a listing's
// zip code, plus talk-track phrases built from it.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/signals"
)

// DefaultTTL is how long an insight is served from cache.
const DefaultTTL = 12 * time.Hour

// ErrMiss is returned by a Cache that holds nothing for a key.
var ErrMiss = errors.New("market cache miss")

// Provider fetches insights for a zip code.
type Provider interface {
	Insights(ctx context.Context, zip string) (*signals.Market, error)
}

// StaticProvider returns fixed simulated figures for any zip. It stands in
// until a listing data feed is wired.
type StaticProvider struct{}

func (StaticProvider) Insights(_ context.Context, zip string) (*signals.Market, error) {
	return &signals.Market{
		Zip:             zip,
		MedianPrice:     500000,
		DaysOnMarket:    15,
		PriceTrend:      3.5,
		SimilarListings: 12,
		CompPrices:      []float64{485000, 510000, 495000, 525000},
		MarketStatus:    signals.StatusSellers,
	}, nil
}

// Cache stores insights by key.
type Cache interface {
	Get(ctx context.Context, key string) (*signals.Market, error)
	Set(ctx context.Context, key string, m *signals.Market, ttl time.Duration) error
}

// CachedProvider fronts a Provider with a Cache. Lookup never fails: any
// error degrades to a nil insight, which scorers treat as neutral.
type CachedProvider struct {
	source Provider
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(source Provider, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedProvider{source: source, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(zip string) string {
	return "almcoach:market:" + zip + "_single_family"
}

// Lookup returns the insight for zip or nil.
func (p *CachedProvider) Lookup(ctx context.Context, zip string) *signals.Market {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return nil
	}
	key := cacheKey(zip)

	m, err := p.cache.Get(ctx, key)
	if err == nil && m != nil {
		return m
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		p.logger.Warn("market cache read failed", "zip", zip, "error", err)
	}

	m, err = p.source.Insights(ctx, zip)
	if err != nil {
		p.logger.Warn("market insights unavailable", "zip", zip, "error", err)
		return nil
	}
	if err := p.cache.Set(ctx, key, m, p.ttl); err != nil {
		p.logger.Warn("market cache write failed", "zip", zip, "error", err)
	}
	return m
}

// Phrases renders talk-track sentences from an insight.
func Phrases(m *signals.Market) []string {
	if m == nil {
		return nil
	}
	out := []string{
		fmt.Sprintf("In this area, homes are typically selling for around %s", dollars(m.MedianPrice)),
	}

	switch {
	case m.DaysOnMarket < 7:
		out = append(out, fmt.Sprintf("Properties here are moving very quickly, typically selling within %d days", m.DaysOnMarket))
	case m.DaysOnMarket < 14:
		out = append(out, fmt.Sprintf("The market is active, with homes selling in about %d days", m.DaysOnMarket))
	default:
		out = append(out, fmt.Sprintf("Properties in this area typically take about %d days to sell", m.DaysOnMarket))
	}

	switch {
	case m.PriceTrend > 0:
		out = append(out, fmt.Sprintf("We're seeing home values increase by %.1f%% in this neighborhood", m.PriceTrend))
	case m.PriceTrend < 0:
		out = append(out, fmt.Sprintf("Home prices have adjusted down by %.1f%% recently", math.Abs(m.PriceTrend)))
	}

	if m.SimilarListings < 5 {
		out = append(out, fmt.Sprintf("There are only %d similar properties available right now", m.SimilarListings))
	} else {
		out = append(out, fmt.Sprintf("There are %d comparable properties on the market", m.SimilarListings))
	}

	switch m.MarketStatus {
	case signals.StatusSellers:
		out = append(out, "Currently it's a seller's market, so desirable properties move quickly")
	case signals.StatusBuyers:
		out = append(out, "Buyers have good negotiating power in the current market")
	default:
		out = append(out, "The market is fairly balanced between buyers and sellers right now")
	}
	return out
}

// Recommendation compares a list price to the area median.
func Recommendation(m *signals.Market, listPrice float64) string {
	if m == nil || m.MedianPrice <= 0 {
		return ""
	}
	diff := (listPrice - m.MedianPrice) / m.MedianPrice * 100

	switch m.MarketStatus {
	case signals.StatusSellers:
		if diff > 10 {
			return "While it's a seller's market, this price point is notably above the median. Highlight the property's unique features that justify the premium."
		}
		return "The strong seller's market supports this price point, and properties are moving quickly."
	case signals.StatusBuyers:
		if diff > 5 {
			return "Given the current buyer's market, discuss price flexibility or emphasize special features."
		}
		return "The price point is competitive for the current market conditions, which should attract serious buyers."
	}
	switch {
	case math.Abs(diff) < 5:
		return "The price aligns well with market conditions, making it attractive to qualified buyers."
	case diff > 0:
		return "The price is slightly above the market median, which the property's features can justify."
	}
	return "This property represents good value in the current market."
}

// dollars formats v as $485,000.
func dollars(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
