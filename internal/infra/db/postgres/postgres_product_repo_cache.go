package postgres

import (
	"context"
	"fmt"
	"time"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
	"elverra-membership/internal/infra/metrics"
	red "elverra-membership/internal/infra/redis"
)

var _ repository.ProductRepository = (*productRepoCacheDecorator)(nil)

const (
	keyProducts = "products"
	keyPricing  = "pricing"
	keyCycles   = "cycles"
)

// productRepoCacheDecorator serves the catalog from redis. Reads inside a
// transaction bypass the cache.
type productRepoCacheDecorator struct {
	inner repository.ProductRepository
	cache *red.JSONCache
}

func NewProductRepoCacheDecorator(inner repository.ProductRepository, client red.RedisClient, ttl time.Duration) repository.ProductRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &productRepoCacheDecorator{
		inner: inner,
		cache: red.NewJSONCache(client, "catalog", ttl),
	}
}

func productKey(id string) string { return "product:" + id }

func pricingKey(productID string, months int) string {
	return fmt.Sprintf("pricing:%s:%d", productID, months)
}

func (d *productRepoCacheDecorator) FindProduct(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
	if isTx(tx) {
		return d.inner.FindProduct(ctx, tx, id)
	}
	var p model.MembershipProduct
	if hit, _ := d.cache.Get(ctx, productKey(id), &p); hit {
		metrics.IncCacheRequest("product", "hit")
		return &p, nil
	}
	metrics.IncCacheRequest("product", "miss")
	found, err := d.inner.FindProduct(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Set(ctx, productKey(id), found)
	return found, nil
}

func (d *productRepoCacheDecorator) FindPricing(ctx context.Context, tx repository.Tx, productID string, cycleMonths int) (*model.MembershipPricing, error) {
	if isTx(tx) {
		return d.inner.FindPricing(ctx, tx, productID, cycleMonths)
	}
	key := pricingKey(productID, cycleMonths)
	var p model.MembershipPricing
	if hit, _ := d.cache.Get(ctx, key, &p); hit {
		metrics.IncCacheRequest("pricing", "hit")
		return &p, nil
	}
	metrics.IncCacheRequest("pricing", "miss")
	found, err := d.inner.FindPricing(ctx, tx, productID, cycleMonths)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Set(ctx, key, found)
	return found, nil
}

func (d *productRepoCacheDecorator) ListActiveProducts(ctx context.Context, tx repository.Tx) ([]*model.MembershipProduct, error) {
	var out []*model.MembershipProduct
	if hit, _ := d.cache.Get(ctx, keyProducts, &out); hit {
		metrics.IncCacheRequest("product_list", "hit")
		return out, nil
	}
	metrics.IncCacheRequest("product_list", "miss")
	out, err := d.inner.ListActiveProducts(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		_ = d.cache.Set(ctx, keyProducts, out)
	}
	return out, nil
}

func (d *productRepoCacheDecorator) ListPricing(ctx context.Context, tx repository.Tx) ([]*model.MembershipPricing, error) {
	var out []*model.MembershipPricing
	if hit, _ := d.cache.Get(ctx, keyPricing, &out); hit {
		metrics.IncCacheRequest("pricing_list", "hit")
		return out, nil
	}
	metrics.IncCacheRequest("pricing_list", "miss")
	out, err := d.inner.ListPricing(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		_ = d.cache.Set(ctx, keyPricing, out)
	}
	return out, nil
}

func (d *productRepoCacheDecorator) ListCycles(ctx context.Context, tx repository.Tx) ([]*model.MembershipCycle, error) {
	var out []*model.MembershipCycle
	if hit, _ := d.cache.Get(ctx, keyCycles, &out); hit {
		metrics.IncCacheRequest("cycle_list", "hit")
		return out, nil
	}
	metrics.IncCacheRequest("cycle_list", "miss")
	out, err := d.inner.ListCycles(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		_ = d.cache.Set(ctx, keyCycles, out)
	}
	return out, nil
}

// Writes invalidate before delegating.

func (d *productRepoCacheDecorator) SaveProduct(ctx context.Context, tx repository.Tx, p *model.MembershipProduct) error {
	_ = d.cache.Invalidate(ctx, productKey(p.ID), keyProducts)
	return d.inner.SaveProduct(ctx, tx, p)
}

func (d *productRepoCacheDecorator) SavePricing(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error {
	_ = d.cache.Invalidate(ctx, pricingKey(p.ProductID, p.CycleMonths), keyPricing)
	return d.inner.SavePricing(ctx, tx, p)
}

func (d *productRepoCacheDecorator) SaveCycle(ctx context.Context, tx repository.Tx, c *model.MembershipCycle) error {
	_ = d.cache.Invalidate(ctx, keyCycles)
	return d.inner.SaveCycle(ctx, tx, c)
}
