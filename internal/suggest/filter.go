package suggest

import (
	"strings"

	"github.com/MikeSquared-Agency/almcoach/internal/detect"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
)

// FirstCallFilter keeps first-call suggestions positive. A candidate that
// delivers bad news is reworded with the topic's positive alternative and a
// candidate that raises an avoided topic is dropped. If dropping would leave
// nothing, the original candidates are kept. Closing lines without an
// enthusiasm phrase end on one.
type FirstCallFilter struct {
	detector *detect.Detector
	lib      *scripts.Library
}

func NewFirstCallFilter(d *detect.Detector, lib *scripts.Library) *FirstCallFilter {
	return &FirstCallFilter{detector: d, lib: lib}
}

func (f *FirstCallFilter) Apply(cands []Candidate, vars map[string]string) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if topics := f.detector.BadNews(c.Text); len(topics) > 0 {
			if alt, ok := f.lib.PositiveAlternative(topics[0]); ok {
				c.Text = scripts.Fill(alt, vars)
			}
		}
		if len(f.detector.AvoidPhrases(c.Text)) > 0 {
			continue
		}
		if c.Type == TypeClosing {
			c.Text = f.enthuse(c.Text)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

func (f *FirstCallFilter) enthuse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || len(f.lib.EnthusiasmPhrases) == 0 || f.lib.Enthusiastic(text) {
		return text
	}
	text = strings.TrimSuffix(text, ".")
	if !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "!"
	}
	return text + " " + f.lib.EnthusiasmPhrases[0] + " work with you!"
}
