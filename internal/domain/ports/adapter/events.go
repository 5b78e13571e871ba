package adapter

import (
	"context"
	"time"
)

const (
	EventSubscriptionCreated       = "subscription.created"
	EventSubscriptionActivated     = "subscription.activated"
	EventSubscriptionStatusChanged = "subscription.status_changed"
	EventCardIssued                = "card.issued"
	EventPaymentCompleted          = "payment.completed"
	EventTokensCredited            = "tokens.credited"
)

// Event is a domain event published after the owning transaction committed.
type Event struct {
	Name        string            `json:"name"`
	AggregateID string            `json:"aggregate_id"`
	UserID      string            `json:"user_id,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// EventPublisher delivers domain events. Failures are logged by callers and
// never roll back the business operation.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
