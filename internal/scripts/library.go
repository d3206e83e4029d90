// Package scripts loads the call script library: openings, objection
// handlers, ALM questions, closings and the offline fallback sets.
package scripts

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
)

//go:embed default_scripts.yaml
var defaultScripts []byte

// Variant is one named wording of a script.
type Variant struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

type Library struct {
	Opening              map[string]string    `yaml:"opening"`
	Objections           map[string][]Variant `yaml:"objections"`
	ALM                  map[string][]string  `yaml:"alm"`
	Qualification        map[string]string    `yaml:"qualification"`
	Closing              map[string]string    `yaml:"closing"`
	AIFallback           map[string][]string  `yaml:"ai_fallback"`
	Fallback             map[string][]string  `yaml:"fallback"`
	AvoidPhrases         []string             `yaml:"avoid_phrases"`
	PositiveAlternatives map[string][]string  `yaml:"positive_alternatives"`
	EnthusiasmPhrases    []string             `yaml:"enthusiasm_phrases"`
}

// Default returns the embedded library.
func Default() (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(defaultScripts, &lib); err != nil {
		return nil, fmt.Errorf("decode embedded scripts: %w", err)
	}
	return &lib, nil
}

// Load reads path over the embedded defaults. Sections the file leaves out
// keep their default content. An empty path returns the defaults.
func Load(path string) (*Library, error) {
	lib, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return lib, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, lib); err != nil {
		return nil, fmt.Errorf("decode scripts file %s: %w", path, err)
	}
	return lib, nil
}

// ObjectionHandlers returns the handler variants for o.
func (l *Library) ObjectionHandlers(o conversation.ObjectionType) []Variant {
	return l.Objections[string(o)]
}

// Enthusiastic reports whether text already carries an enthusiasm phrase.
func (l *Library) Enthusiastic(text string) bool {
	t := strings.ToLower(text)
	for _, p := range l.EnthusiasmPhrases {
		if p != "" && strings.Contains(t, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// PositiveAlternative returns the first replacement line for a bad-news topic.
func (l *Library) PositiveAlternative(topic string) (string, bool) {
	alts := l.PositiveAlternatives[topic]
	if len(alts) == 0 {
		return "", false
	}
	return alts[0], true
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// Fill replaces {token} placeholders from vars. Tokens without a value are
// left verbatim.
func Fill(template string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(tok string) string {
		if v, ok := vars[tok[1:len(tok)-1]]; ok && v != "" {
			return v
		}
		return tok
	})
}
