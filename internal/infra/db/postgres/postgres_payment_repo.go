package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, purpose, reference_id, gateway, gateway_ref, amount, currency, phone, status, pay_url, failure_reason, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  gateway_ref=$6, status=$10, pay_url=$11, failure_reason=$12, updated_at=$14, paid_at=$15;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, string(p.Purpose), p.ReferenceID, p.Gateway, p.GatewayRef, p.Amount, p.Currency,
		p.Phone, string(p.Status), p.PayURL, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByGatewayRef(ctx context.Context, tx repository.Tx, gateway, ref string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE gateway=$1 AND gateway_ref=$2 ORDER BY created_at DESC LIMIT 1;`
	return r.queryOne(ctx, tx, q, gateway, ref)
}

// UpdateStatusIfPending atomically updates status only when current status is 'pending' or 'initiated'.
func (r *paymentRepo) UpdateStatusIfPending(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reason string, paidAt *time.Time,
) (bool, error) {
	const q = `
    UPDATE payments
       SET status = $2,
           failure_reason = $3,
           paid_at = $4,
           updated_at = NOW()
     WHERE id = $1
       AND status IN ('pending','initiated')`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), reason, paidAt)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + paymentColumns + `
  FROM payments
 WHERE status IN ('pending','initiated') AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) HasCompletedForReference(ctx context.Context, tx repository.Tx, purpose model.PaymentPurpose, referenceID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payments WHERE purpose=$1 AND reference_id=$2 AND status='completed');`
	row, err := pickRow(ctx, r.pool, tx, q, string(purpose), referenceID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapScanErr(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func scanPayment(row scanner) (*model.Payment, error) {
	var (
		p               model.Payment
		purpose, status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &purpose, &p.ReferenceID, &p.Gateway, &p.GatewayRef, &p.Amount, &p.Currency,
		&p.Phone, &status, &p.PayURL, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, err
	}
	p.Purpose = model.PaymentPurpose(purpose)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
