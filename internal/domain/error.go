package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Validation / authorization
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("authentication required")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// Subscription lifecycle
	ErrSubscriptionNotFound        = errors.New("subscription not found")
	ErrProductNotFound             = errors.New("product not found")
	ErrDuplicateActiveSubscription = errors.New("user already has an active subscription of this kind")
	ErrAlreadyActive               = errors.New("subscription already active")
	ErrInvalidTransition           = errors.New("invalid subscription status transition")
	ErrCardNotFound                = errors.New("membership card not found")
	ErrInvalidCardPayload          = errors.New("invalid card payload")
	ErrSubscriptionInactive        = errors.New("membership subscription is not active")

	// Payments
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrUnknownGateway    = errors.New("unknown payment gateway")
	ErrInvalidInput      = errors.New("invalid payment input")
	ErrNetwork           = errors.New("payment gateway unreachable")
	ErrGatewayRejected   = errors.New("payment rejected by gateway")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrPaymentInProgress = errors.New("payment verification already in progress")
	ErrInvalidSignature  = errors.New("invalid webhook signature")

	// Token ledger
	ErrTokenAccountNotFound = errors.New("token account not found")
	ErrChildTierNotEligible = errors.New("child memberships cannot purchase assistance tokens")
	ErrTokenLimitExceeded   = errors.New("token purchase outside monthly limits")
	ErrInactiveTokenAccount = errors.New("token account is not active")
)
