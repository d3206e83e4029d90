//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/almcoach/internal/events"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_EmitEvent(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan events.Event, 1)

	err = client.Subscribe(SubjectPrefix+">", func(subject string, data []byte) {
		var e events.Event
		json.Unmarshal(data, &e)
		received <- e
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	sent := events.New(events.KindObjectionHandled, "integration-call")
	sent.Objection = "listing_agent"
	if err := client.Emit(ctx, sent); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != sent.ID || e.Objection != "listing_agent" {
			t.Errorf("expected emitted event, got %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
