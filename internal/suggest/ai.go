package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/analyzer"
	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
	"github.com/MikeSquared-Agency/almcoach/internal/llm"
	"github.com/MikeSquared-Agency/almcoach/internal/market"
	"github.com/MikeSquared-Agency/almcoach/internal/metrics"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
)

const (
	historyTurns = 10
	aiMaxTokens  = 300
	aiMaxLines   = 3
)

// AIGenerator asks the model for three ready-to-say lines. Any failure
// yields the stage's fixed fallback set instead.
type AIGenerator struct {
	llm     llm.Completer
	lib     *scripts.Library
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAIGenerator(c llm.Completer, lib *scripts.Library, m *metrics.Metrics, logger *slog.Logger) *AIGenerator {
	return &AIGenerator{llm: c, lib: lib, metrics: m, logger: logger}
}

func (g *AIGenerator) Generate(ctx context.Context, req Request) []Candidate {
	start := time.Now()
	raw, err := g.llm.Complete(ctx, analyzer.SystemPrompt, []llm.Message{{Role: "user", Content: BuildPrompt(req)}}, aiMaxTokens)
	if err != nil {
		g.metrics.LLMCall("generate", "error", time.Since(start))
		g.logger.Warn("ai suggestions failed, using fallback", "call_id", req.CallID, "error", err)
		return g.fallback(req)
	}

	lines := ParseLines(raw)
	if len(lines) == 0 {
		g.metrics.LLMCall("generate", "empty", time.Since(start))
		g.logger.Warn("ai suggestions empty, using fallback", "call_id", req.CallID)
		return g.fallback(req)
	}
	g.metrics.LLMCall("generate", "ok", time.Since(start))

	out := make([]Candidate, 0, len(lines))
	for _, l := range lines {
		c := Candidate{Text: l, Confidence: ConfidenceAI, Type: TypeDynamic, Source: SourceAI}
		if req.Objection != "" {
			c.Objection = req.Objection
		}
		out = append(out, c)
	}
	return out
}

// fallbackSet maps a stage onto the fixed fallback groups.
func fallbackSet(s conversation.Stage) string {
	switch s {
	case conversation.StageOpening:
		return "initial"
	case conversation.StageAppointment, conversation.StageLocation, conversation.StageMotivation:
		return "qualification"
	case conversation.StageObjectionHandling:
		return "objection"
	}
	return "closing"
}

func (g *AIGenerator) fallback(req Request) []Candidate {
	lines := g.lib.AIFallback[fallbackSet(req.Stage)]
	out := make([]Candidate, 0, len(lines))
	for _, l := range take(lines, aiMaxLines) {
		out = append(out, Candidate{
			Text:       l,
			Confidence: ConfidenceAIFallback,
			Type:       TypeFallback,
			Source:     SourceFallback,
		})
	}
	return out
}

var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)

// ParseLines splits a model response into at most three clean lines.
func ParseLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		l = listMarker.ReplaceAllString(l, "")
		l = strings.Trim(l, `"“” `)
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == aiMaxLines {
			break
		}
	}
	return out
}

// BuildPrompt renders the turn context for the model.
func BuildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("Based on this real estate lead conversation:\n\n")
	hist := req.History
	if len(hist) > historyTurns {
		hist = hist[len(hist)-historyTurns:]
	}
	for _, u := range hist {
		speaker := "Agent"
		if u.Speaker == conversation.SpeakerClient {
			speaker = "Client"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, u.Text)
	}

	sb.WriteString("\nContext:\n")
	fmt.Fprintf(&sb, "- Current stage: %s\n", req.Stage)
	interest := req.InterestLevel
	if interest == "" {
		interest = analyzer.Unknown
	}
	fmt.Fprintf(&sb, "- Interest level: %s\n", interest)
	fmt.Fprintf(&sb, "- Identified objections: %s\n", joinOr(objectionNames(req.State.Objections()), "None"))
	fmt.Fprintf(&sb, "- Client needs: %s\n", joinOr(req.Needs, "Not yet identified"))
	fmt.Fprintf(&sb, "- Appointment set: %t\n", req.State.AppointmentSet)
	for _, f := range propertyFields {
		if v := req.Vars[f.key]; v != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", f.label, v)
		}
	}
	if v := req.Vars["agent_name"]; v != "" {
		fmt.Fprintf(&sb, "- Agent: %s (%s)\n", v, req.Vars["brokerage"])
	}

	if v := req.Signals.Voice; v != nil {
		sb.WriteString("\nClient Voice Analysis:\n")
		fmt.Fprintf(&sb, "- Confidence Level: %.2f\n", v.Emotion("confident"))
		fmt.Fprintf(&sb, "- Interest Level: %.2f\n", v.Emotion("interested"))
		fmt.Fprintf(&sb, "- Hesitation Level: %.2f\n", v.Emotion("hesitant"))
		fmt.Fprintf(&sb, "- Speaking Rate: %.1f words/min\n", v.SpeakingRate)
	}
	if m := req.Signals.Market; m != nil {
		sb.WriteString("\nMarket Insights:\n")
		fmt.Fprintf(&sb, "- Median Price: $%.0f\n", m.MedianPrice)
		fmt.Fprintf(&sb, "- Days on Market: %d days\n", m.DaysOnMarket)
		fmt.Fprintf(&sb, "- Market Status: %s\n", m.MarketStatus)
		fmt.Fprintf(&sb, "- Price Trend: %+.1f%%\n", m.PriceTrend)
		fmt.Fprintf(&sb, "- Similar Listings: %d\n", m.SimilarListings)
		if req.ListPrice > 0 {
			fmt.Fprintf(&sb, "- Pricing: %s\n", market.Recommendation(m, req.ListPrice))
		}
	}
	if d := req.Signals.Dynamics; d != nil {
		sb.WriteString("\nConversation Dynamics:\n")
		fmt.Fprintf(&sb, "- Turn Balance: %.2f\n", d.TurnTakingBalance)
		fmt.Fprintf(&sb, "- Engagement Score: %.2f\n", d.EngagementScore)
		fmt.Fprintf(&sb, "- Interruption Count: %d\n", d.InterruptionCount)
		fmt.Fprintf(&sb, "- Silence Ratio: %.2f\n", d.SilenceRatio)
	}

	sb.WriteString(`
Generate 3 short responses the agent can say next that:
1. Move toward setting an in-person appointment
2. Address any objection with empathy, then redirect to a showing
3. Never deliver bad news or discuss financing on this first call

Return ONLY the responses, one per line, without numbering.`)
	return sb.String()
}

var propertyFields = []struct{ key, label string }{
	{"property_address", "Property"},
	{"price", "Price"},
	{"bedrooms", "Bedrooms"},
	{"bathrooms", "Bathrooms"},
	{"sqft", "Square feet"},
	{"year_built", "Year built"},
}

func objectionNames(os []conversation.ObjectionType) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = string(o)
	}
	return out
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
