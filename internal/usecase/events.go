package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"elverra-membership/internal/domain/ports/adapter"
)

// publish sends a domain event after commit. A failed publish is logged and
// never undoes the business operation.
func publish(ctx context.Context, pub adapter.EventPublisher, log *zerolog.Logger, name, aggregateID, userID string, data map[string]string) {
	if pub == nil {
		return
	}
	e := adapter.Event{
		Name:        name,
		AggregateID: aggregateID,
		UserID:      userID,
		Data:        data,
		OccurredAt:  time.Now().UTC(),
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", name).Str("aggregate_id", aggregateID).Msg("event publish failed")
	}
}
