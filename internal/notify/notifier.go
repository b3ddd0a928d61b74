// Package notify consumes the alert feed and dispatches notifications.
// Delivery here is the structured log channel; push/SMS/email providers
// hang off the same subscription when configured.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

// Notifier subscribes to alert topics and records deliveries.
type Notifier struct {
	bus    domain.EventBus
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription

	delivered atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier creates a notifier on the given bus.
func NewNotifier(bus domain.EventBus, logger *slog.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		bus:    bus,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to alert creation and update events.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	created, err := n.bus.Subscribe(n.ctx, domain.TopicAlertCreated, n.handleCreated)
	if err != nil {
		return err
	}
	n.subscriptions = append(n.subscriptions, created)

	updated, err := n.bus.Subscribe(n.ctx, domain.TopicAlertUpdated, n.handleUpdated)
	if err != nil {
		return err
	}
	n.subscriptions = append(n.subscriptions, updated)

	n.logger.Info("notifier started", "topics", []string{domain.TopicAlertCreated, domain.TopicAlertUpdated})
	return nil
}

func (n *Notifier) handleCreated(_ context.Context, msg *domain.Message) error {
	var alert domain.FraudAlert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		n.logger.Error("failed to decode alert event", "message_id", msg.ID, "error", err)
		return err
	}

	n.delivered.Add(1)
	n.logger.Info("alert notification",
		"alert_id", alert.ID,
		"type", alert.Type,
		"message", alert.Message,
	)
	return nil
}

func (n *Notifier) handleUpdated(_ context.Context, msg *domain.Message) error {
	var alert domain.FraudAlert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		n.logger.Error("failed to decode alert event", "message_id", msg.ID, "error", err)
		return err
	}

	n.logger.Info("alert state changed",
		"alert_id", alert.ID,
		"type", alert.Type,
		"read", alert.Read,
		"resolved", alert.Resolved(),
	)
	return nil
}

// Delivered returns the number of alert notifications dispatched.
func (n *Notifier) Delivered() int64 {
	return n.delivered.Load()
}

// Stop unsubscribes from all topics.
func (n *Notifier) Stop() error {
	n.cancel()

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	n.subscriptions = nil

	n.logger.Info("notifier stopped")
	return nil
}
