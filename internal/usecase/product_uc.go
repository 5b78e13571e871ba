package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
	"elverra-membership/internal/infra/logging"
)

// Compile-time check
var _ ProductUseCase = (*productUC)(nil)

// ProductUseCase serves the membership catalog and seeds it.
type ProductUseCase interface {
	ListCatalog(ctx context.Context) (*model.Catalog, error)
	// Quote returns the price a user pays for a product and cycle: the renewal
	// price when the user already held an activated subscription of that category.
	Quote(ctx context.Context, userID, productID string, cycleMonths int) (int64, string, error)
	Seed(ctx context.Context, products []*model.MembershipProduct, pricing []*model.MembershipPricing, cycles []*model.MembershipCycle) error
}

type productUC struct {
	products repository.ProductRepository
	subs     repository.SubscriptionRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewProductUseCase(products repository.ProductRepository, subs repository.SubscriptionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *productUC {
	return &productUC{products: products, subs: subs, tm: tm, log: logger}
}

func (u *productUC) ListCatalog(ctx context.Context) (*model.Catalog, error) {
	defer logging.TraceDuration(u.log, "ProductUC.ListCatalog")()

	products, err := u.products.ListActiveProducts(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	pricing, err := u.products.ListPricing(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	cycles, err := u.products.ListCycles(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool, len(products))
	for _, p := range products {
		active[p.ID] = true
	}
	visible := pricing[:0:0]
	for _, p := range pricing {
		if active[p.ProductID] {
			visible = append(visible, p)
		}
	}
	return &model.Catalog{Products: products, Pricing: visible, Cycles: cycles}, nil
}

func (u *productUC) Quote(ctx context.Context, userID, productID string, cycleMonths int) (int64, string, error) {
	defer logging.TraceDuration(u.log, "ProductUC.Quote")()

	if cycleMonths == 0 {
		cycleMonths = model.DefaultCycleMonths
	}
	product, err := u.products.FindProduct(ctx, repository.NoTX, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, "", domain.ErrProductNotFound
		}
		return 0, "", err
	}
	pricing, err := u.products.FindPricing(ctx, repository.NoTX, productID, cycleMonths)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, "", domain.ErrProductNotFound
		}
		return 0, "", err
	}
	renewal := false
	if strings.TrimSpace(userID) != "" {
		renewal, err = u.subs.HasActivated(ctx, repository.NoTX, userID, product.Kind == model.ProductKindChild)
		if err != nil {
			return 0, "", err
		}
	}
	return pricing.Price(renewal), pricing.Currency, nil
}

func (u *productUC) Seed(ctx context.Context, products []*model.MembershipProduct, pricing []*model.MembershipPricing, cycles []*model.MembershipCycle) error {
	defer logging.TraceDuration(u.log, "ProductUC.Seed")()

	for _, c := range cycles {
		if !model.IsAllowedCycle(c.Months) {
			return domain.ErrValidation
		}
	}
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, p := range products {
			if err := u.products.SaveProduct(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, c := range cycles {
			if err := u.products.SaveCycle(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, p := range pricing {
			if err := u.products.SavePricing(ctx, tx, p); err != nil {
				return err
			}
		}
		u.log.Info().Int("products", len(products)).Int("pricing", len(pricing)).Int("cycles", len(cycles)).Msg("catalog seeded")
		return nil
	})
}
