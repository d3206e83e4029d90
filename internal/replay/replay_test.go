package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/almcoach/internal/detect"
	"github.com/MikeSquared-Agency/almcoach/internal/processor"
	"github.com/MikeSquared-Agency/almcoach/internal/qualify"
	"github.com/MikeSquared-Agency/almcoach/internal/scripts"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseJSONL(t *testing.T) {
	path := writeFile(t, "call.jsonl", strings.Join([]string{
		`{"speaker":"agent","text":"Hi, this is Mike with ABC Realty."}`,
		`not json`,
		``,
		`{"speaker":"client","text":"   "}`,
		`{"speaker":"client","text":"I'm working with an agent already.","voice_metrics":{"speaking_rate":140}}`,
	}, "\n"))

	ins, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ins) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(ins))
	}
	if ins[0].Speaker != "agent" || ins[1].Speaker != "client" {
		t.Errorf("unexpected speakers %q %q", ins[0].Speaker, ins[1].Speaker)
	}
	if ins[1].Voice == nil || ins[1].Voice.SpeakingRate != 140 {
		t.Errorf("expected voice metrics decoded, got %+v", ins[1].Voice)
	}
}

func TestParseText(t *testing.T) {
	path := writeFile(t, "call.txt", `# recorded 2026-03-02
Hello?
Agent: Hi Sarah, this is Mike
  with ABC Realty.
LEAD: Yes, tomorrow morning works.

Client:
Caller: We're looking in the Westlake area.
`)

	ins, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []processor.Input{
		{Speaker: "", Text: "Hello?"},
		{Speaker: "agent", Text: "Hi Sarah, this is Mike with ABC Realty."},
		{Speaker: "lead", Text: "Yes, tomorrow morning works."},
		{Speaker: "caller", Text: "We're looking in the Westlake area."},
	}
	if len(ins) != len(want) {
		t.Fatalf("expected %d utterances, got %d: %+v", len(want), len(ins), ins)
	}
	for i := range want {
		if ins[i].Speaker != want[i].Speaker || ins[i].Text != want[i].Text {
			t.Errorf("utterance %d = %q %q, want %q %q", i, ins[i].Speaker, ins[i].Text, want[i].Speaker, want[i].Text)
		}
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func newProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	lib, err := scripts.Default()
	if err != nil {
		t.Fatalf("scripts: %v", err)
	}
	return processor.New(processor.Deps{
		Registry: session.NewRegistry(),
		Detector: detect.New(detect.Options{}, discardLogger()),
		Tracker:  qualify.NewTracker(nil),
		Library:  lib,
		Logger:   discardLogger(),
	}, processor.Options{})
}

func TestRunner_Run(t *testing.T) {
	path := writeFile(t, "sarah.txt", `Agent: Hi Sarah, this is Mike with ABC Realty.
Client: I'd rather talk to the listing agent.
Client: Okay, tomorrow morning works.
Client: We like the Westlake neighborhood.
Client: We need more room for the kids.
Agent: Wonderful, I'm excited to work with you!
`)
	var out bytes.Buffer
	r := NewRunner(newProcessor(t), &out, discardLogger())

	report, err := r.Run(context.Background(), path, session.Profile{AgentName: "Mike", LeadName: "Sarah"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Turns != 6 || len(report.Errors) != 0 {
		t.Errorf("expected 6 clean turns, got %d %v", report.Turns, report.Errors)
	}
	if report.FinalStage != "closing" || !report.AppointmentSet {
		t.Errorf("expected closing with appointment, got %s %v", report.FinalStage, report.AppointmentSet)
	}
	if len(report.Objections) != 1 || report.Objections[0] != "listing_agent" {
		t.Errorf("expected listing_agent objection, got %v", report.Objections)
	}
	wantPath := []string{"appointment", "location", "motivation", "closing"}
	if strings.Join(report.StagePath, ",") != strings.Join(wantPath, ",") {
		t.Errorf("stage path = %v, want %v", report.StagePath, wantPath)
	}
	if !strings.Contains(out.String(), "objection_handling (listing_agent)") {
		t.Errorf("expected objection turn in output:\n%s", out.String())
	}
}

func TestRunner_EmptyTranscript(t *testing.T) {
	path := writeFile(t, "empty.jsonl", "\n\n")
	r := NewRunner(newProcessor(t), io.Discard, discardLogger())
	if _, err := r.Run(context.Background(), path, session.Profile{}); err == nil {
		t.Error("expected error for empty transcript")
	}
}

func TestReport_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "sarah.json")
	rep := &Report{File: "sarah.txt", Turns: 3, FinalStage: "location"}
	rep.AddError("turn 2: boom")

	if err := rep.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Turns != 3 || got.FinalStage != "location" || len(got.Errors) != 1 {
		t.Errorf("unexpected report %+v", got)
	}
}
