package repository

import (
	"context"
	"time"

	"elverra-membership/internal/domain/model"
)

type TokenAccountRepository interface {
	// Insert fails with domain.ErrAlreadyExists for a second account of the same
	// user, subscription and service type.
	Insert(ctx context.Context, tx Tx, a *model.TokenAccount) error
	// FindByID locks the row (FOR UPDATE) when tx is a live transaction.
	FindByID(ctx context.Context, tx Tx, id string) (*model.TokenAccount, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.TokenAccount, error)
	AddBalance(ctx context.Context, tx Tx, id string, delta int) (int, error)
}

type TokenTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.TokenTransaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.TokenTransaction, error)
	ListByAccount(ctx context.Context, tx Tx, accountID string, limit int) ([]*model.TokenTransaction, error)
	// SumSince totals pending and completed purchases of the account since from.
	SumSince(ctx context.Context, tx Tx, accountID string, from time.Time) (int, error)
	// CompleteIfPending moves a pending transaction to status and reports
	// whether this call performed the change.
	CompleteIfPending(ctx context.Context, tx Tx, id string, status model.TokenTransactionStatus) (bool, error)
}
