//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/usecase"
)

func TestProductUseCase_ListCatalog(t *testing.T) {
	t.Run("should hide inactive products and their pricing", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		uc := usecase.NewProductUseCase(deps.products, deps.subs, deps.tm, newTestLogger())

		cat, err := uc.ListCatalog(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(cat.Products) != 2 {
			t.Errorf("expected 2 active products, got %d", len(cat.Products))
		}
		for _, p := range cat.Pricing {
			if p.ProductID == "prod-old" {
				t.Error("pricing of a retired product leaked into the catalog")
			}
		}
		if len(cat.Pricing) != 3 || len(cat.Cycles) != 2 {
			t.Errorf("unexpected catalog: %d pricing, %d cycles", len(cat.Pricing), len(cat.Cycles))
		}
	})
}

func TestProductUseCase_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("should quote the purchase price to newcomers", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		uc := usecase.NewProductUseCase(deps.products, deps.subs, deps.tm, newTestLogger())

		price, cur, err := uc.Quote(ctx, "user-1", "prod-ess", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if price != 10000 || cur != "XOF" {
			t.Errorf("expected 10000 XOF, got %d %s", price, cur)
		}
	})

	t.Run("should quote the renewal price to former members", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		activeSubscription(t, deps.uc(), "user-1")
		uc := usecase.NewProductUseCase(deps.products, deps.subs, deps.tm, newTestLogger())

		price, _, err := uc.Quote(ctx, "user-1", "prod-ess", 12)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if price != 8000 {
			t.Errorf("expected 8000, got %d", price)
		}
		// no renewal price on file falls back to the purchase price
		price, _, _ = uc.Quote(ctx, "user-1", "prod-ess", 1)
		if price != 1000 {
			t.Errorf("expected 1000, got %d", price)
		}
	})

	t.Run("should fail for unknown products and cycles", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		uc := usecase.NewProductUseCase(deps.products, deps.subs, deps.tm, newTestLogger())

		if _, _, err := uc.Quote(ctx, "", "nope", 12); !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("expected ErrProductNotFound, got %v", err)
		}
		if _, _, err := uc.Quote(ctx, "", "prod-kid", 1); !errors.Is(err, domain.ErrProductNotFound) {
			t.Errorf("expected ErrProductNotFound for a missing cycle, got %v", err)
		}
	})
}

func TestProductUseCase_Seed(t *testing.T) {
	ctx := context.Background()

	t.Run("should store the catalog in one transaction", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		products := NewMockProductRepo()
		uc := usecase.NewProductUseCase(products, deps.subs, deps.tm, newTestLogger())

		err := uc.Seed(ctx,
			[]*model.MembershipProduct{{ID: "p1", Name: "Premium", Kind: model.ProductKindAdult, Tier: model.TierPremium, IsActive: true}},
			[]*model.MembershipPricing{{ProductID: "p1", CycleMonths: 6, PurchasePrice: 6000, Currency: "XOF"}},
			[]*model.MembershipCycle{{Months: 6, Label: "6 mois"}},
		)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if deps.tm.Calls != 1 {
			t.Errorf("expected one transaction, got %d", deps.tm.Calls)
		}
		if _, err := products.FindPricing(ctx, nil, "p1", 6); err != nil {
			t.Errorf("expected stored pricing, got %v", err)
		}
	})

	t.Run("should reject cycles outside the allowed set", func(t *testing.T) {
		deps := newSubscriptionUCDeps()
		uc := usecase.NewProductUseCase(deps.products, deps.subs, deps.tm, newTestLogger())

		err := uc.Seed(ctx, nil, nil, []*model.MembershipCycle{{Months: 7}})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if deps.tm.Calls != 0 {
			t.Errorf("expected no transaction, got %d", deps.tm.Calls)
		}
	})
}
