package repository

import (
	"context"

	"elverra-membership/internal/domain/model"
)

// ProductRepository is the port for the membership catalog.
type ProductRepository interface {
	SaveProduct(ctx context.Context, tx Tx, p *model.MembershipProduct) error
	SavePricing(ctx context.Context, tx Tx, p *model.MembershipPricing) error
	SaveCycle(ctx context.Context, tx Tx, c *model.MembershipCycle) error
	FindProduct(ctx context.Context, tx Tx, id string) (*model.MembershipProduct, error)
	FindPricing(ctx context.Context, tx Tx, productID string, cycleMonths int) (*model.MembershipPricing, error)
	ListActiveProducts(ctx context.Context, tx Tx) ([]*model.MembershipProduct, error)
	ListPricing(ctx context.Context, tx Tx) ([]*model.MembershipPricing, error)
	ListCycles(ctx context.Context, tx Tx) ([]*model.MembershipCycle, error)
}
