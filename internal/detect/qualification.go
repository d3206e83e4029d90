package detect

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Category is one qualification dimension.
type Category string

const (
	CategoryArea          Category = "area"
	CategoryLocationNeeds Category = "location_needs"
	CategoryMoney         Category = "money"
)

// Categories in reporting order.
var Categories = []Category{CategoryArea, CategoryLocationNeeds, CategoryMoney}

const (
	mentionConfidence = 0.8
	amountConfidence  = 0.9
)

// Match is a single qualification signal extracted from an utterance.
type Match struct {
	Category   Category
	Value      string
	Confidence float64
}

type indicator struct {
	re *regexp.Regexp
	// money amounts are normalized and carry higher confidence
	amount bool
}

var indicators = map[Category][]indicator{
	CategoryArea: {
		{re: regexp.MustCompile(`(?i)\b(?:looking|interested|want|prefer|like)\s+(?:in|around|near|at)\s+(?:the\s+)?([a-z][a-z ]*?\s*(?:area|neighborhood|suburbs?|city|town|district))\b`)},
		{re: regexp.MustCompile(`(?i)\b((?:north|south|east|west)\s+side|downtown|uptown|midtown)\b`)},
		{re: regexp.MustCompile(`(?i)\b([a-z]+\s+(?:area|neighborhood|suburbs?|district))\b`)},
	},
	CategoryLocationNeeds: {
		{re: regexp.MustCompile(`(?i)\b(?:close|near|proximity)\s+to\s+(?:the\s+|my\s+|our\s+)?([a-z]+(?:\s+[a-z]+)?)`)},
		{re: regexp.MustCompile(`(?i)\b((?:school|work|shopping|transportation|highway|train|bus)\s+(?:district|access|nearby|area))\b`)},
		{re: regexp.MustCompile(`(?i)\b((?:commute|drive|travel)\s+time)\b`)},
		{re: regexp.MustCompile(`(?i)\b(walkable|quiet|suburban|urban|rural)\b`)},
	},
	CategoryMoney: {
		{re: regexp.MustCompile(`(?i)\b(?:budget|afford|price|cost|payment|spend)\s+(?:(?:range|around|about|between|of|is|up\s+to)\s+){0,2}(\$?\d[\d,.]*\s+(?:thousand|million)\b|\$?\s?\d[\d,.]*\s?[km]?\b)`), amount: true},
		{re: regexp.MustCompile(`(?i)\b(pre-?approved|qualified)\b`)},
		{re: regexp.MustCompile(`(?i)\b(lender|mortgage|loan|financing)\b`)},
		{re: regexp.MustCompile(`(?i)\b(down\s+payment)\b`)},
	},
}

// Qualification returns at most one match per category, the strongest found.
// A money amount that cannot be normalized is dropped.
func (d *Detector) Qualification(text string) (matches []Match) {
	defer d.guard("qualification")
	for _, cat := range Categories {
		var best *Match
		for _, ind := range indicators[cat] {
			sub := ind.re.FindStringSubmatch(text)
			if sub == nil {
				continue
			}
			value := strings.TrimSpace(sub[len(sub)-1])
			conf := mentionConfidence
			if ind.amount {
				norm, ok := NormalizeMoney(value)
				if !ok {
					d.logger.Debug("money value not normalizable", "value", value)
					continue
				}
				value, conf = norm, amountConfidence
			}
			if best == nil || conf > best.Confidence {
				best = &Match{Category: cat, Value: value, Confidence: conf}
			}
		}
		if best != nil {
			matches = append(matches, *best)
		}
	}
	return matches
}

// moneyToken is a whole amount once the dollar sign and spaces are gone:
// plain or comma-grouped digits, an optional fraction and a scale suffix.
var moneyToken = regexp.MustCompile(`^(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?(k|m|thousand|million)?$`)

// NormalizeMoney formats a spoken amount like "$500K" or "1.2 million" as
// "$500,000". Malformed tokens such as "1.2.3K" or "1,2,3" return false
// rather than a partial reading.
func NormalizeMoney(raw string) (string, bool) {
	s := strings.Join(strings.Fields(strings.ToLower(raw)), "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimRight(s, ".,")
	m := moneyToken.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	digits := strings.ReplaceAll(m[1], ",", "")
	if m[2] != "" {
		digits += "." + m[2]
	}
	n, err := strconv.ParseFloat(digits, 64)
	if err != nil || n <= 0 || math.IsInf(n, 0) {
		return "", false
	}
	switch m[3] {
	case "k", "thousand":
		n *= 1_000
	case "m", "million":
		n *= 1_000_000
	}
	if n >= 1e15 {
		return "", false
	}
	return "$" + groupThousands(int64(math.Round(n))), true
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func badNewsTopics(text string, table map[string][]string) []string {
	var topics []string
	for topic, triggers := range table {
		if containsAny(text, triggers) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}
