package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

var _ repository.CardRepository = (*cardRepo)(nil)

type cardRepo struct{ pool *pgxpool.Pool }

func NewCardRepo(pool *pgxpool.Pool) *cardRepo {
	return &cardRepo{pool: pool}
}

const cardColumns = `id, subscription_id, user_id, card_identifier, qr_data, holder_full_name, holder_city, holder_neighborhood, status, issued_at, card_expiry_date`

func (r *cardRepo) Insert(ctx context.Context, tx repository.Tx, c *model.MembershipCard) error {
	const q = `INSERT INTO membership_cards (` + cardColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.SubscriptionID, c.UserID, c.CardIdentifier, c.QRData, c.HolderFullName,
		c.HolderCity, c.HolderNeighborhood, string(c.Status), c.IssuedAt, c.CardExpiryDate)
	if err != nil {
		if code, _ := pgCode(err); code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return mapExecErr(err)
	}
	return nil
}

func (r *cardRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.MembershipCard, error) {
	const q = `SELECT ` + cardColumns + ` FROM membership_cards WHERE subscription_id=$1;`
	return r.queryOne(ctx, tx, q, subscriptionID)
}

func (r *cardRepo) FindByIdentifier(ctx context.Context, tx repository.Tx, identifier string) (*model.MembershipCard, error) {
	const q = `SELECT ` + cardColumns + ` FROM membership_cards WHERE card_identifier=$1;`
	return r.queryOne(ctx, tx, q, identifier)
}

func (r *cardRepo) UpdateStatus(ctx context.Context, tx repository.Tx, subscriptionID string, status model.CardStatus, expiry *time.Time) error {
	const q = `UPDATE membership_cards SET status=$2, card_expiry_date=COALESCE($3, card_expiry_date) WHERE subscription_id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, subscriptionID, string(status), expiry)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *cardRepo) ExpireBefore(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `UPDATE membership_cards SET status='expired' WHERE status='active' AND card_expiry_date < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *cardRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.MembershipCard, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	var (
		c      model.MembershipCard
		status string
	)
	if err := row.Scan(&c.ID, &c.SubscriptionID, &c.UserID, &c.CardIdentifier, &c.QRData, &c.HolderFullName,
		&c.HolderCity, &c.HolderNeighborhood, &status, &c.IssuedAt, &c.CardExpiryDate); err != nil {
		return nil, mapScanErr(err, domain.ErrNotFound)
	}
	c.Status = model.CardStatus(status)
	return &c, nil
}
