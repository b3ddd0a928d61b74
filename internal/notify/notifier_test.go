package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/bus"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

func TestNotifierDelivery(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewNotifier(b, logger)

	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer n.Stop()

	alert := &domain.FraudAlert{
		ID:      "alert-001",
		Type:    domain.AlertWarning,
		Message: "Unusual M-Pesa transaction of TZS 120,000 (risk score: 62.0%)",
	}
	payload, _ := json.Marshal(alert)

	if err := b.Publish(context.Background(), domain.TopicAlertCreated, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for n.Delivered() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for notification delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if n.Delivered() != 1 {
		t.Errorf("expected 1 delivery, got %d", n.Delivered())
	}
}

func TestNotifierIgnoresGarbage(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewNotifier(b, logger)
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer n.Stop()

	b.Publish(context.Background(), domain.TopicAlertCreated, []byte("{not json"))

	time.Sleep(50 * time.Millisecond)
	if n.Delivered() != 0 {
		t.Errorf("expected no delivery for malformed payload, got %d", n.Delivered())
	}
}

func TestNotifierStop(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewNotifier(b, logger)
	n.Start()

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Events after Stop are not delivered.
	alert := &domain.FraudAlert{ID: "late"}
	payload, _ := json.Marshal(alert)
	b.Publish(context.Background(), domain.TopicAlertCreated, payload)

	time.Sleep(50 * time.Millisecond)
	if n.Delivered() != 0 {
		t.Errorf("expected no delivery after stop, got %d", n.Delivered())
	}
}
