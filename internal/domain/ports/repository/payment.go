package repository

import (
	"context"
	"time"

	"elverra-membership/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByGatewayRef(ctx context.Context, tx Tx, gateway, ref string) (*model.Payment, error)
	// UpdateStatusIfPending atomically updates status only when the current status
	// is 'pending' or 'initiated'. It reports whether a row changed.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, reason string, paidAt *time.Time) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	HasCompletedForReference(ctx context.Context, tx Tx, purpose model.PaymentPurpose, referenceID string) (bool, error)
}
