package repository

import (
	"context"
	"time"

	"elverra-membership/internal/domain/model"
)

// SubscriptionRepository is the port for membership subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindByID locks the row (FOR UPDATE) when tx is a live transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	// FindActiveByUserAndCategory returns the active subscription of the adult
	// (isChild=false) or child category, or domain.ErrNotFound.
	FindActiveByUserAndCategory(ctx context.Context, tx Tx, userID string, isChild bool) (*model.Subscription, error)
	// HasActivated reports whether the user ever held an activated subscription of
	// the category. Drives purchase vs renewal pricing.
	HasActivated(ctx context.Context, tx Tx, userID string, isChild bool) (bool, error)
	// ListStalePending lists pending subscriptions created before olderThan that
	// have no initiated, pending or completed payment.
	ListStalePending(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
