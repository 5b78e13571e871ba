package repository

import (
	"context"
	"time"

	"elverra-membership/internal/domain/model"
)

type CardRepository interface {
	// Insert fails with domain.ErrAlreadyExists when the subscription already has a card.
	Insert(ctx context.Context, tx Tx, c *model.MembershipCard) error
	FindBySubscription(ctx context.Context, tx Tx, subscriptionID string) (*model.MembershipCard, error)
	FindByIdentifier(ctx context.Context, tx Tx, identifier string) (*model.MembershipCard, error)
	UpdateStatus(ctx context.Context, tx Tx, subscriptionID string, status model.CardStatus, expiry *time.Time) error
	// ExpireBefore marks active cards whose expiry is before now as expired.
	ExpireBefore(ctx context.Context, tx Tx, now time.Time) (int64, error)
}
