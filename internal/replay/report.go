package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/processor"
)

// Report is the outcome of replaying one transcript.
type Report struct {
	File           string    `json:"file"`
	CallID         string    `json:"call_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Turns          int       `json:"turns"`
	FinalStage     string    `json:"final_stage"`
	AppointmentSet bool      `json:"appointment_set"`
	ALMCompletion  string    `json:"alm_completion"`
	Qualification  float64   `json:"qualification"`
	Objections     []string  `json:"objections"`
	Warnings       int       `json:"warnings"`
	Suggestions    int       `json:"suggestions"`
	StagePath      []string  `json:"stage_path"`
	Errors         []string  `json:"errors"`
}

// Record accumulates one turn.
func (r *Report) Record(res *processor.TurnResult) {
	r.Turns++
	r.Warnings += len(res.Warnings)
	if res.Primary != nil {
		r.Suggestions += 1 + len(res.Alternatives)
	}
	base := string(res.BaseStage)
	if n := len(r.StagePath); n == 0 || r.StagePath[n-1] != base {
		r.StagePath = append(r.StagePath, base)
	}
}

func (r *Report) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Save writes the report as indented JSON, creating parent directories.
func (r *Report) Save(path string) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
