package scripts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/almcoach/internal/conversation"
)

func TestDefault(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, o := range conversation.ObjectionTypes {
		if len(lib.ObjectionHandlers(o)) == 0 {
			t.Errorf("missing handler for %s", o)
		}
	}
	if got := lib.ObjectionHandlers(conversation.ObjectionListingAgent); len(got) != 2 || got[0].Name != "steamroll" {
		t.Errorf("expected steamroll and education variants, got %+v", got)
	}
	for _, stage := range []string{"opening", "appointment", "location", "motivation", "closing", "objection_handling"} {
		if len(lib.Fallback[stage]) != 3 {
			t.Errorf("expected 3 fallback questions for %s, got %d", stage, len(lib.Fallback[stage]))
		}
	}
	for _, set := range []string{"initial", "qualification", "objection", "closing"} {
		if len(lib.AIFallback[set]) != 3 {
			t.Errorf("expected 3 ai fallback lines for %s, got %d", set, len(lib.AIFallback[set]))
		}
	}
	if !strings.HasPrefix(lib.Opening["named_no_tour"], "Hi, this is {agent_name} with {brokerage}") {
		t.Errorf("unexpected opening %q", lib.Opening["named_no_tour"])
	}
	if strings.Contains(lib.Closing["nurture_lead"], "\n") {
		t.Error("folded scalars must not keep newlines")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	lib, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lib.ALM["appointment"]) == 0 {
		t.Error("expected default alm questions")
	}
}

func TestLoad_FileOverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.yaml")
	content := `
closing:
  nurture_lead: "Talk soon, {lead_name}!"
avoid_phrases:
  - hoa fees
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lib.Closing["nurture_lead"] != "Talk soon, {lead_name}!" {
		t.Errorf("expected overridden nurture line, got %q", lib.Closing["nurture_lead"])
	}
	if lib.Closing["appointment_set"] == "" {
		t.Error("expected default appointment_set closing kept")
	}
	if len(lib.AvoidPhrases) != 1 || lib.AvoidPhrases[0] != "hoa fees" {
		t.Errorf("unexpected avoid phrases %v", lib.AvoidPhrases)
	}
	if len(lib.ObjectionHandlers(conversation.ObjectionNotReady)) == 0 {
		t.Error("expected default objection handlers kept")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("opening: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestFill(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{"all resolved", "Hi, this is {agent_name} with {brokerage}", map[string]string{"agent_name": "Sarah", "brokerage": "ABC Realty"}, "Hi, this is Sarah with ABC Realty"},
		{"unresolved left verbatim", "Call me at {phone}", map[string]string{"agent_name": "Sarah"}, "Call me at {phone}"},
		{"empty value left verbatim", "Email {email}", map[string]string{"email": ""}, "Email {email}"},
		{"nil vars", "{price} home", nil, "{price} home"},
		{"repeated token", "{x} and {x}", map[string]string{"x": "y"}, "y and y"},
		{"no tokens", "plain text", map[string]string{"a": "b"}, "plain text"},
		{"not a token", "{Upper} {with space}", map[string]string{"Upper": "no"}, "{Upper} {with space}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fill(tt.template, tt.vars); got != tt.want {
				t.Errorf("Fill = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnthusiastic(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := []struct {
		text string
		want bool
	}{
		{"I'm excited to show you these properties!", true},
		{"i'd LOVE to help", true},
		{lib.Closing["nurture_lead"], true},
		{"Talk soon.", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := lib.Enthusiastic(tt.text); got != tt.want {
			t.Errorf("Enthusiastic(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if (&Library{}).Enthusiastic("I'm excited to") {
		t.Error("empty library has no phrases")
	}
}

func TestPositiveAlternative(t *testing.T) {
	lib, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lib.PositiveAlternative("property_unavailable"); !ok {
		t.Error("expected alternative for property_unavailable")
	}
	if _, ok := lib.PositiveAlternative("nope"); ok {
		t.Error("expected no alternative for unknown topic")
	}
}
