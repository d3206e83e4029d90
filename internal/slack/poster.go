package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// CallSummary is the end-of-call digest posted for the agent's team.
type CallSummary struct {
	CallID            string
	AgentName         string
	LeadName          string
	PropertyAddress   string
	Duration          time.Duration
	FinalStage        string
	AppointmentSet    bool
	ALMCompletion     string
	Qualification     float64
	Collected         map[string]string
	NextSteps         []string
	Objections        []string
	Needs             []string
	Turns             int
	SuggestionsServed int
	SuggestionsUsed   int
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostCallSummary posts the call digest and, when there are next steps,
// a threaded reply listing them. Returns the message timestamp.
func (p *Poster) PostCallSummary(ctx context.Context, s CallSummary) (string, error) {
	text := formatCallSummary(s)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("Call `%s`", s.CallID),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted call summary to slack", "ts", ts, "call_id", s.CallID)

	if len(s.NextSteps) > 0 {
		if err := p.PostThread(ctx, ts, formatNextSteps(s.NextSteps)); err != nil {
			p.logger.Warn("slack thread reply failed", "call_id", s.CallID, "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatCallSummary(s CallSummary) string {
	var sb strings.Builder

	lead := s.LeadName
	if lead == "" {
		lead = "Unknown lead"
	}
	fmt.Fprintf(&sb, "*Call:* %s with %s (%s)\n", orDash(s.AgentName), lead, s.Duration.Round(time.Second))
	if s.PropertyAddress != "" {
		fmt.Fprintf(&sb, "*Property:* %s\n", s.PropertyAddress)
	}

	appointment := ":x: not set"
	if s.AppointmentSet {
		appointment = ":white_check_mark: set"
	}
	fmt.Fprintf(&sb, "*Appointment:* %s | *Final stage:* %s | *ALM:* %s\n", appointment, s.FinalStage, s.ALMCompletion)
	fmt.Fprintf(&sb, "*Qualification:* %.0f%%", s.Qualification*100)
	if len(s.Collected) > 0 {
		for _, k := range []string{"money", "area", "location_needs"} {
			if v, ok := s.Collected[k]; ok {
				fmt.Fprintf(&sb, " | %s: %s", k, v)
			}
		}
	}
	sb.WriteString("\n")

	if len(s.Objections) > 0 {
		fmt.Fprintf(&sb, "*Objections:* %s\n", strings.Join(s.Objections, ", "))
	}
	if len(s.Needs) > 0 {
		fmt.Fprintf(&sb, "*Needs:* %s\n", strings.Join(s.Needs, ", "))
	}
	fmt.Fprintf(&sb, "*Turns:* %d | *Suggestions used:* %d of %d", s.Turns, s.SuggestionsUsed, s.SuggestionsServed)

	return sb.String()
}

func formatNextSteps(steps []string) string {
	var sb strings.Builder
	sb.WriteString("*Next steps*\n")
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
