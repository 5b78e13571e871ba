package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

var (
	_ repository.TokenAccountRepository     = (*tokenAccountRepo)(nil)
	_ repository.TokenTransactionRepository = (*tokenTxRepo)(nil)
)

// -----------------------------
// Token accounts
// -----------------------------

type tokenAccountRepo struct{ pool *pgxpool.Pool }

func NewTokenAccountRepo(pool *pgxpool.Pool) *tokenAccountRepo {
	return &tokenAccountRepo{pool: pool}
}

const tokenAccountColumns = `id, user_id, membership_subscription_id, service_type, token_balance, token_value, rescue_value, is_active, created_at, updated_at`

func (r *tokenAccountRepo) Insert(ctx context.Context, tx repository.Tx, a *model.TokenAccount) error {
	const q = `INSERT INTO token_accounts (` + tokenAccountColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.UserID, a.MembershipSubscriptionID, string(a.Type),
		a.TokenBalance, a.TokenValue, a.RescueValue, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *tokenAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TokenAccount, error) {
	q := `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a, err := scanTokenAccount(row)
	if err != nil {
		return nil, mapScanErr(err, domain.ErrTokenAccountNotFound)
	}
	return a, nil
}

func (r *tokenAccountRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.TokenAccount, error) {
	const q = `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE user_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.TokenAccount
	for rows.Next() {
		a, err := scanTokenAccount(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// AddBalance applies delta and returns the new balance.
func (r *tokenAccountRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta int) (int, error) {
	const q = `UPDATE token_accounts SET token_balance = token_balance + $2, updated_at = NOW() WHERE id=$1 RETURNING token_balance;`
	row, err := pickRow(ctx, r.pool, tx, q, id, delta)
	if err != nil {
		return 0, err
	}
	var balance int
	if err := row.Scan(&balance); err != nil {
		return 0, mapScanErr(err, domain.ErrTokenAccountNotFound)
	}
	return balance, nil
}

func scanTokenAccount(row scanner) (*model.TokenAccount, error) {
	var (
		a     model.TokenAccount
		stype string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.MembershipSubscriptionID, &stype, &a.TokenBalance,
		&a.TokenValue, &a.RescueValue, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Type = model.TokenServiceType(stype)
	return &a, nil
}

// -----------------------------
// Token transactions
// -----------------------------

type tokenTxRepo struct{ pool *pgxpool.Pool }

func NewTokenTransactionRepo(pool *pgxpool.Pool) *tokenTxRepo {
	return &tokenTxRepo{pool: pool}
}

const tokenTxColumns = `id, account_id, service_type, amount, total_price, payment_method, phone_number, payment_id, status, created_at, updated_at`

func (r *tokenTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	const q = `
INSERT INTO token_transactions (` + tokenTxColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET payment_id=$8, status=$9, updated_at=$11;`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.AccountID, string(t.Type), t.Amount, t.TotalPrice,
		string(t.PaymentMethod), t.PhoneNumber, t.PaymentID, string(t.Status), t.CreatedAt, t.UpdatedAt)
	return mapExecErr(err)
}

func (r *tokenTxRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TokenTransaction, error) {
	q := `SELECT ` + tokenTxColumns + ` FROM token_transactions WHERE id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	t, err := scanTokenTx(row)
	if err != nil {
		return nil, mapScanErr(err, domain.ErrNotFound)
	}
	return t, nil
}

func (r *tokenTxRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, limit int) ([]*model.TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + tokenTxColumns + ` FROM token_transactions WHERE account_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.TokenTransaction
	for rows.Next() {
		t, err := scanTokenTx(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *tokenTxRepo) SumSince(ctx context.Context, tx repository.Tx, accountID string, from time.Time) (int, error) {
	const q = `
SELECT COALESCE(SUM(amount), 0)
  FROM token_transactions
 WHERE account_id=$1 AND status IN ('pending','completed') AND created_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, accountID, from)
	if err != nil {
		return 0, err
	}
	var sum int
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *tokenTxRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id string, status model.TokenTransactionStatus) (bool, error) {
	const q = `UPDATE token_transactions SET status=$2, updated_at=NOW() WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func scanTokenTx(row scanner) (*model.TokenTransaction, error) {
	var (
		t                     model.TokenTransaction
		stype, method, status string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &stype, &t.Amount, &t.TotalPrice, &method, &t.PhoneNumber,
		&t.PaymentID, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = model.TokenServiceType(stype)
	t.PaymentMethod = model.PaymentMethod(method)
	t.Status = model.TokenTransactionStatus(status)
	return &t, nil
}
