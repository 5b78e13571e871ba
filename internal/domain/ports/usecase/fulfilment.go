package usecase

import (
	"context"

	"elverra-membership/internal/domain/model"
)

// ActivationResult is the outcome of activating a subscription.
type ActivationResult struct {
	Subscription *model.Subscription
	Card         *model.MembershipCard
}

// SubscriptionActivator is what payment fulfilment needs from the lifecycle controller.
// A second activation returns the existing result with domain.ErrAlreadyActive.
type SubscriptionActivator interface {
	Activate(ctx context.Context, subscriptionID, paymentID string) (*ActivationResult, error)
}

// TokenCompleter settles a pending token purchase once its payment is final.
type TokenCompleter interface {
	CompleteTransaction(ctx context.Context, transactionID string, success bool) (*model.TokenTransaction, error)
}
