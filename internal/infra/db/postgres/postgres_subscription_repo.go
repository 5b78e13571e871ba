package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, product_id, status, start_date, end_date, is_recurring, is_child, child_name, child_birthdate, metadata, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO membership_subscriptions (` + subColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  status=$4, start_date=$5, end_date=$6, is_recurring=$7, child_name=$9, child_birthdate=$10, metadata=$11, updated_at=$13;`

	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.ProductID, string(s.Status), s.StartDate, s.EndDate, s.IsRecurring,
		s.IsChild, s.ChildName, s.ChildBirthdate, meta, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == uniqueViolation {
			// Only the partial index on (user_id, is_child) WHERE active can fire here.
			return domain.ErrDuplicateActiveSubscription
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM membership_subscriptions WHERE id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subColumns + ` FROM membership_subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindActiveByUserAndCategory(ctx context.Context, tx repository.Tx, userID string, isChild bool) (*model.Subscription, error) {
	const q = `
SELECT ` + subColumns + `
  FROM membership_subscriptions
 WHERE user_id=$1 AND is_child=$2 AND status='active'
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID, isChild)
}

func (r *subscriptionRepo) HasActivated(ctx context.Context, tx repository.Tx, userID string, isChild bool) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM membership_subscriptions
   WHERE user_id=$1 AND is_child=$2 AND metadata ? 'activated_at'
);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, isChild)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *subscriptionRepo) ListStalePending(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + subColumns + `
  FROM membership_subscriptions s
 WHERE s.status='pending'
   AND s.created_at < $1
   AND NOT EXISTS (
     SELECT 1 FROM payments p
      WHERE p.purpose='subscription' AND p.reference_id=s.id AND p.status IN ('initiated','pending','completed')
   )
 ORDER BY s.created_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, olderThan, limit)
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM membership_subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSub(row pgx.Row) (*model.Subscription, error) {
	var (
		s      model.Subscription
		status string
		meta   []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &s.ProductID, &status, &s.StartDate, &s.EndDate, &s.IsRecurring,
		&s.IsChild, &s.ChildName, &s.ChildBirthdate, &meta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &s, nil
}
