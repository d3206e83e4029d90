// Package replay drives recorded call transcripts through the processor
// offline, for tuning scripts and detectors against real calls.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/almcoach/internal/processor"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
)

// Runner replays transcripts one file at a time.
type Runner struct {
	proc   *processor.Processor
	out    io.Writer
	logger *slog.Logger
}

func NewRunner(proc *processor.Processor, out io.Writer, logger *slog.Logger) *Runner {
	return &Runner{proc: proc, out: out, logger: logger}
}

// Run replays the transcript at path as a fresh call and prints each turn.
func (r *Runner) Run(ctx context.Context, path string, profile session.Profile) (*Report, error) {
	inputs, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no utterances in %s", path)
	}

	callID := callIDFor(path)
	report := &Report{File: path, CallID: callID, StartedAt: time.Now().UTC()}

	r.logger.Info("replaying transcript", "path", path, "call_id", callID, "utterances", len(inputs))

	opening, err := r.proc.StartCall(ctx, callID, profile)
	if err != nil {
		return nil, fmt.Errorf("start call: %w", err)
	}
	fmt.Fprintf(r.out, "== %s (%d utterances)\n", filepath.Base(path), len(inputs))
	r.printSuggestions(opening)

	for i, in := range inputs {
		select {
		case <-ctx.Done():
			r.logger.Info("replay interrupted", "call_id", callID, "turn", i)
			_, _ = r.proc.EndCall(context.WithoutCancel(ctx), callID)
			return report, ctx.Err()
		default:
		}

		res, err := r.proc.HandleUtterance(ctx, callID, in)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return report, fmt.Errorf("turn %d: %w", i+1, err)
			}
			r.logger.Warn("turn failed", "call_id", callID, "turn", i+1, "error", err)
			report.AddError(fmt.Sprintf("turn %d: %v", i+1, err))
			continue
		}
		report.Record(res)

		speaker := in.Speaker
		if speaker == "" {
			speaker = "?"
		}
		fmt.Fprintf(r.out, "[%02d] %-6s %s\n", i+1, speaker, in.Text)
		stage := string(res.Stage)
		if res.Objection != "" {
			stage += " (" + res.Objection + ")"
		}
		fmt.Fprintf(r.out, "     stage: %s\n", stage)
		for _, w := range res.Warnings {
			fmt.Fprintf(r.out, "     ! %s\n", w)
		}
		r.printSuggestions(res)
	}

	sum, err := r.proc.EndCall(ctx, callID)
	if err != nil {
		return report, fmt.Errorf("end call: %w", err)
	}
	report.FinishedAt = time.Now().UTC()
	report.FinalStage = sum.FinalStage
	report.AppointmentSet = sum.AppointmentSet
	report.ALMCompletion = sum.ALMCompletion
	report.Qualification = sum.Qualification
	report.Objections = sum.Objections

	fmt.Fprintf(r.out, "== final stage %s, appointment set: %v, ALM %s, qualification %.0f%%\n",
		sum.FinalStage, sum.AppointmentSet, sum.ALMCompletion, sum.Qualification*100)
	return report, nil
}

func (r *Runner) printSuggestions(res *processor.TurnResult) {
	if res.Primary == nil {
		return
	}
	fmt.Fprintf(r.out, "     -> %s\n", res.Primary.Text)
	for _, alt := range res.Alternatives {
		fmt.Fprintf(r.out, "        %s\n", alt.Text)
	}
}

func callIDFor(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return "replay-" + name + "-" + uuid.NewString()[:8]
}
