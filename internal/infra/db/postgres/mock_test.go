//go:build !integration

package postgres

import (
	"context"
	"time"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
	red "elverra-membership/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerProductRepo mocks the database repository that the catalog decorator wraps.
type mockInnerProductRepo struct {
	calls int

	SaveProductFunc        func(ctx context.Context, tx repository.Tx, p *model.MembershipProduct) error
	SavePricingFunc        func(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error
	SaveCycleFunc          func(ctx context.Context, tx repository.Tx, c *model.MembershipCycle) error
	FindProductFunc        func(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error)
	FindPricingFunc        func(ctx context.Context, tx repository.Tx, productID string, months int) (*model.MembershipPricing, error)
	ListActiveProductsFunc func(ctx context.Context, tx repository.Tx) ([]*model.MembershipProduct, error)
	ListPricingFunc        func(ctx context.Context, tx repository.Tx) ([]*model.MembershipPricing, error)
	ListCyclesFunc         func(ctx context.Context, tx repository.Tx) ([]*model.MembershipCycle, error)
}

func (m *mockInnerProductRepo) SaveProduct(ctx context.Context, tx repository.Tx, p *model.MembershipProduct) error {
	m.calls++
	return m.SaveProductFunc(ctx, tx, p)
}
func (m *mockInnerProductRepo) SavePricing(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error {
	m.calls++
	return m.SavePricingFunc(ctx, tx, p)
}
func (m *mockInnerProductRepo) SaveCycle(ctx context.Context, tx repository.Tx, c *model.MembershipCycle) error {
	m.calls++
	return m.SaveCycleFunc(ctx, tx, c)
}
func (m *mockInnerProductRepo) FindProduct(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
	m.calls++
	return m.FindProductFunc(ctx, tx, id)
}
func (m *mockInnerProductRepo) FindPricing(ctx context.Context, tx repository.Tx, productID string, months int) (*model.MembershipPricing, error) {
	m.calls++
	return m.FindPricingFunc(ctx, tx, productID, months)
}
func (m *mockInnerProductRepo) ListActiveProducts(ctx context.Context, tx repository.Tx) ([]*model.MembershipProduct, error) {
	m.calls++
	return m.ListActiveProductsFunc(ctx, tx)
}
func (m *mockInnerProductRepo) ListPricing(ctx context.Context, tx repository.Tx) ([]*model.MembershipPricing, error) {
	m.calls++
	return m.ListPricingFunc(ctx, tx)
}
func (m *mockInnerProductRepo) ListCycles(ctx context.Context, tx repository.Tx) ([]*model.MembershipCycle, error) {
	m.calls++
	return m.ListCyclesFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc == nil {
		return 1, nil
	}
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
