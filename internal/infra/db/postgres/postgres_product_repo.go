package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.ProductRepository = (*productRepo)(nil)

type productRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

func (r *productRepo) SaveProduct(ctx context.Context, tx repository.Tx, p *model.MembershipProduct) error {
	const q = `
INSERT INTO membership_products (id, name, kind, tier, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
  SET name      = EXCLUDED.name,
      kind      = EXCLUDED.kind,
      tier      = EXCLUDED.tier,
      is_active = EXCLUDED.is_active;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, string(p.Kind), string(p.Tier), p.IsActive, p.CreatedAt)
	return mapExecErr(err)
}

func (r *productRepo) SavePricing(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error {
	const q = `
INSERT INTO membership_pricing (product_id, cycle_months, purchase_price, renewal_price, currency)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (product_id, cycle_months) DO UPDATE
  SET purchase_price = EXCLUDED.purchase_price,
      renewal_price  = EXCLUDED.renewal_price,
      currency       = EXCLUDED.currency;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ProductID, p.CycleMonths, p.PurchasePrice, p.RenewalPrice, p.Currency)
	return mapExecErr(err)
}

func (r *productRepo) SaveCycle(ctx context.Context, tx repository.Tx, c *model.MembershipCycle) error {
	const q = `
INSERT INTO membership_cycles (months, label) VALUES ($1, $2)
ON CONFLICT (months) DO UPDATE SET label = EXCLUDED.label;`
	_, err := execSQL(ctx, r.pool, tx, q, c.Months, c.Label)
	return mapExecErr(err)
}

func (r *productRepo) FindProduct(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
	const q = `SELECT id, name, kind, tier, is_active, created_at FROM membership_products WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanProduct(row)
	if err != nil {
		return nil, mapScanErr(err, domain.ErrNotFound)
	}
	return p, nil
}

func (r *productRepo) FindPricing(ctx context.Context, tx repository.Tx, productID string, cycleMonths int) (*model.MembershipPricing, error) {
	const q = `
SELECT product_id, cycle_months, purchase_price, renewal_price, currency
  FROM membership_pricing
 WHERE product_id = $1 AND cycle_months = $2;`
	row, err := pickRow(ctx, r.pool, tx, q, productID, cycleMonths)
	if err != nil {
		return nil, err
	}
	var p model.MembershipPricing
	if err := row.Scan(&p.ProductID, &p.CycleMonths, &p.PurchasePrice, &p.RenewalPrice, &p.Currency); err != nil {
		return nil, mapScanErr(err, domain.ErrNotFound)
	}
	return &p, nil
}

func (r *productRepo) ListActiveProducts(ctx context.Context, tx repository.Tx) ([]*model.MembershipProduct, error) {
	const q = `SELECT id, name, kind, tier, is_active, created_at FROM membership_products WHERE is_active ORDER BY kind, name;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.MembershipProduct
	for rows.Next() {
		p, err := scanProduct(rows)
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

func (r *productRepo) ListPricing(ctx context.Context, tx repository.Tx) ([]*model.MembershipPricing, error) {
	const q = `
SELECT product_id, cycle_months, purchase_price, renewal_price, currency
  FROM membership_pricing
 ORDER BY product_id, cycle_months;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.MembershipPricing
	for rows.Next() {
		var p model.MembershipPricing
		if err := rows.Scan(&p.ProductID, &p.CycleMonths, &p.PurchasePrice, &p.RenewalPrice, &p.Currency); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *productRepo) ListCycles(ctx context.Context, tx repository.Tx) ([]*model.MembershipCycle, error) {
	const q = `SELECT months, label FROM membership_cycles ORDER BY months;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()
	var out []*model.MembershipCycle
	for rows.Next() {
		var c model.MembershipCycle
		if err := rows.Scan(&c.Months, &c.Label); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row scanner) (*model.MembershipProduct, error) {
	var (
		p          model.MembershipProduct
		kind, tier string
	)
	if err := row.Scan(&p.ID, &p.Name, &kind, &tier, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Kind = model.ProductKind(kind)
	p.Tier = model.ProductTier(tier)
	return &p, nil
}
