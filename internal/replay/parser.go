package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/almcoach/internal/processor"
)

// speakerPrefix matches "Agent:", "Client:", "Lead:" and friends at the
// start of a transcript line.
var speakerPrefix = regexp.MustCompile(`(?i)^\s*(agent|realtor|client|lead|caller|customer)\s*:\s*(.*)$`)

// ParseFile reads a transcript. Files ending in .jsonl hold one utterance
// object per line; anything else is read as a speaker-prefixed text
// transcript.
func ParseFile(path string) ([]processor.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return ParseJSONL(f)
	}
	return ParseText(f)
}

// ParseJSONL decodes one processor.Input per line. Malformed and empty
// lines are skipped.
func ParseJSONL(r io.Reader) ([]processor.Input, error) {
	var out []processor.Input

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var in processor.Input
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			continue
		}
		if strings.TrimSpace(in.Text) == "" {
			continue
		}
		out = append(out, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

// ParseText reads "Speaker: text" lines. An unprefixed line continues the
// previous utterance; one before any prefix becomes an utterance whose
// speaker is guessed later.
func ParseText(r io.Reader) ([]processor.Input, error) {
	var out []processor.Input

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := speakerPrefix.FindStringSubmatch(line); m != nil {
			out = append(out, processor.Input{Speaker: strings.ToLower(m[1]), Text: strings.TrimSpace(m[2])})
			continue
		}
		if n := len(out); n > 0 {
			out[n-1].Text = strings.TrimSpace(out[n-1].Text + " " + line)
			continue
		}
		out = append(out, processor.Input{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	kept := out[:0]
	for _, in := range out {
		if in.Text != "" {
			kept = append(kept, in)
		}
	}
	return kept, nil
}
