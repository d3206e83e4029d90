package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("opening", time.Second)
	m.SuggestionServed("template")
	m.LLMCall("generate", "ok", time.Second)
	m.Objection("not_ready")
	m.RateLimited("turn")
	m.EventError("nats")
	m.CallStarted()
	m.CallEnded()
}

func TestCounters(t *testing.T) {
	m := New()
	m.SuggestionServed("ai")
	m.SuggestionServed("ai")
	m.SuggestionServed("template")
	m.Objection("listing_agent")
	m.CallStarted()
	m.CallStarted()
	m.CallEnded()

	if got := testutil.ToFloat64(m.SuggestionsTotal.WithLabelValues("ai")); got != 2 {
		t.Errorf("expected 2 ai suggestions, got %f", got)
	}
	if got := testutil.ToFloat64(m.ObjectionsTotal.WithLabelValues("listing_agent")); got != 1 {
		t.Errorf("expected 1 objection, got %f", got)
	}
	if got := testutil.ToFloat64(m.ActiveCalls); got != 1 {
		t.Errorf("expected 1 active call, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RateLimited("transcription")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `almcoach_rate_limit_hits_total{scope="transcription"} 1`) {
		t.Errorf("expected rate limit counter in output, got:\n%s", body)
	}
}
