package suggest

import (
	"context"

	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
)

// FallbackGenerator returns three safe questions for the stage. It makes no
// external calls.
type FallbackGenerator struct {
	lib *scripts.Library
}

func NewFallbackGenerator(lib *scripts.Library) *FallbackGenerator {
	return &FallbackGenerator{lib: lib}
}

func (g *FallbackGenerator) Generate(_ context.Context, req Request) []Candidate {
	lines := g.lib.Fallback[string(req.Stage)]
	if len(lines) == 0 {
		lines = g.lib.Fallback["opening"]
	}
	out := make([]Candidate, 0, 3)
	for _, l := range take(lines, 3) {
		out = append(out, Candidate{
			Text:       scripts.Fill(l, req.Vars),
			Confidence: ConfidenceFallback,
			Type:       TypeFallback,
			Source:     SourceFallback,
		})
	}
	return out
}
