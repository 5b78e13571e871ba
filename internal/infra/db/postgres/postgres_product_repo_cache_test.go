//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

func TestProductRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	product := &model.MembershipProduct{ID: "prod-premium", Name: "Premium", Kind: model.ProductKindAdult, Tier: model.TierPremium, IsActive: true}
	productJSON, _ := json.Marshal(product)

	t.Run("FindProduct should return from cache on hit", func(t *testing.T) {
		// Arrange
		var requestedKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				requestedKey = key
				return string(productJSON), nil
			},
		}
		inner := &mockInnerProductRepo{
			FindProductFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
				t.Error("inner repository should not be called on a cache hit")
				return nil, nil
			},
		}
		decorator := NewProductRepoCacheDecorator(inner, mockRedis, time.Hour)

		// Act
		got, err := decorator.FindProduct(ctx, nil, "prod-premium")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got == nil || got.ID != "prod-premium" || got.Tier != model.TierPremium {
			t.Errorf("did not return the cached product, got %+v", got)
		}
		if requestedKey != "catalog:product:prod-premium" {
			t.Errorf("unexpected cache key %q", requestedKey)
		}
	})

	t.Run("FindProduct should fill the cache on miss", func(t *testing.T) {
		// Arrange
		var stored []string
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				stored = append(stored, key)
				if expiration != 30*time.Minute {
					t.Errorf("expected ttl 30m, got %v", expiration)
				}
				return nil
			},
		}
		inner := &mockInnerProductRepo{
			FindProductFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
				return product, nil
			},
		}
		decorator := NewProductRepoCacheDecorator(inner, mockRedis, 30*time.Minute)

		// Act
		got, err := decorator.FindProduct(ctx, nil, "prod-premium")

		// Assert
		if err != nil || got == nil {
			t.Fatalf("expected product, got %v / %v", got, err)
		}
		if inner.calls != 1 {
			t.Errorf("expected inner to be called once, got %d", inner.calls)
		}
		if len(stored) != 1 || stored[0] != "catalog:product:prod-premium" {
			t.Errorf("expected product to be cached, stored=%v", stored)
		}
	})

	t.Run("SavePricing should invalidate the cache", func(t *testing.T) {
		// Arrange
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		inner := &mockInnerProductRepo{
			SavePricingFunc: func(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error {
				return nil
			},
		}
		decorator := NewProductRepoCacheDecorator(inner, mockRedis, time.Hour)

		// Act
		err := decorator.SavePricing(ctx, nil, &model.MembershipPricing{ProductID: "prod-premium", CycleMonths: 12})

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(deletedKeys) != 2 {
			t.Fatalf("expected 2 keys to be deleted, but got %d", len(deletedKeys))
		}
		if deletedKeys[0] != "catalog:pricing:prod-premium:12" || deletedKeys[1] != "catalog:pricing" {
			t.Errorf("unexpected keys %v", deletedKeys)
		}
	})
}
