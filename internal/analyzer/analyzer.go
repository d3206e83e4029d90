// Package analyzer asks the model for a structured read of the call so far
// and coerces the answer into a safe shape.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/llm"
)

// ErrValidation marks a model response that is not a JSON object or lacks a
// required key.
var ErrValidation = errors.New("invalid analysis response")

const (
	StatusSuccess = "success"
	StatusError   = "error"
	Unknown       = "unknown"
)

// requiredKeys must all be present in a response; their values are coerced.
var requiredKeys = []string{"stage", "objections", "interest_level", "needs", "topics", "next_actions"}

var (
	validStages    = []string{"initial", "qualification", "objection", "closing"}
	validInterests = []string{"high", "medium", "low"}
)

// Analysis is the model's read of a call.
type Analysis struct {
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Stage         string    `json:"stage"`
	Objections    []string  `json:"objections"`
	InterestLevel string    `json:"interest_level"`
	Needs         []string  `json:"needs"`
	Topics        []string  `json:"topics"`
	NextActions   []string  `json:"next_actions"`
	Timestamp     time.Time `json:"timestamp"`
}

// JSONCompleter is implemented by clients that can force JSON output.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error)
}

type Analyzer struct {
	llm    llm.Completer
	logger *slog.Logger
	now    func() time.Time
}

func New(c llm.Completer, logger *slog.Logger) *Analyzer {
	return &Analyzer{llm: c, logger: logger, now: time.Now}
}

// Safe returns the default analysis reported on failure.
func Safe(now time.Time, err error) Analysis {
	a := Analysis{
		Status:        StatusError,
		Stage:         Unknown,
		Objections:    []string{},
		InterestLevel: Unknown,
		Needs:         []string{},
		Topics:        []string{},
		NextActions:   []string{"Retry analysis"},
		Timestamp:     now,
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Analyze never returns a nil-valued analysis: on any failure the safe
// defaults come back alongside the error.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (Analysis, error) {
	messages := []llm.Message{{Role: "user", Content: fmt.Sprintf(analysisUserPrompt, transcript)}}

	var (
		raw string
		err error
	)
	if jc, ok := a.llm.(JSONCompleter); ok {
		raw, err = jc.CompleteJSON(ctx, SystemPrompt, messages, 400)
	} else {
		raw, err = a.llm.Complete(ctx, SystemPrompt, messages, 400)
	}
	if err != nil {
		err = fmt.Errorf("llm analysis: %w", err)
		a.logger.Warn("conversation analysis failed", "error", err)
		return Safe(a.now(), err), err
	}

	out, err := Parse(raw)
	if err != nil {
		a.logger.Warn("conversation analysis unparseable", "error", err, "raw", raw)
		return Safe(a.now(), err), err
	}
	out.Timestamp = a.now()
	return out, nil
}

// Parse validates and coerces a raw model response. Every required key must
// be present; mistyped lists become empty and stage or interest outside
// their sets become "unknown".
func Parse(raw string) (Analysis, error) {
	raw = stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Analysis{}, fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}

	return Analysis{
		Status:        StatusSuccess,
		Stage:         enumField(fields["stage"], validStages),
		Objections:    listField(fields["objections"]),
		InterestLevel: enumField(fields["interest_level"], validInterests),
		Needs:         listField(fields["needs"]),
		Topics:        listField(fields["topics"]),
		NextActions:   listField(fields["next_actions"]),
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func enumField(raw json.RawMessage, valid []string) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return Unknown
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range valid {
		if s == v {
			return s
		}
	}
	return Unknown
}

func listField(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		if single = strings.TrimSpace(single); single != "" {
			out = append(out, single)
		}
		return out
	}
	var items []any
	if json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
