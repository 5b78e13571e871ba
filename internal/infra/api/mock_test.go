//go:build !integration

package api_test

import (
	"context"
	"net/http"
	"sync"
	"time"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/infra/payment"
	"elverra-membership/internal/usecase"
)

// --- usecase fakes: embed the interface, override what the test touches ---

type fakeSubs struct {
	usecase.SubscriptionUseCase
	mu        sync.Mutex
	subs      map[string]*model.Subscription
	cards     map[string]*model.MembershipCard
	createErr error
	lastOwner string
	verify    *usecase.CardVerification
	verifyErr error
	panicOn   string
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{subs: map[string]*model.Subscription{}, cards: map[string]*model.MembershipCard{}}
}

func (f *fakeSubs) CreatePending(ctx context.Context, in usecase.CreatePendingInput) (*model.Subscription, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	prod := &model.MembershipProduct{ID: in.ProductID, Name: "Premium", Kind: model.ProductKindAdult, Tier: model.TierPremium}
	sub, err := model.NewPendingSubscription("sub-new", in.UserID, prod, in.CycleMonths, in.IsChild, in.Holder, in.ChildName, in.ChildBirthdate, time.Now())
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.subs[sub.ID] = sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeSubs) owned(id, owner string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOwner = owner
	if id == f.panicOn {
		panic("boom")
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	if owner != "" && s.UserID != owner {
		return nil, domain.ErrUnauthorized
	}
	return s, nil
}

func (f *fakeSubs) Get(ctx context.Context, id, owner string) (*model.Subscription, error) {
	return f.owned(id, owner)
}

func (f *fakeSubs) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) UpdateStatus(ctx context.Context, id string, to model.SubscriptionStatus, owner string) (*model.Subscription, error) {
	s, err := f.owned(id, owner)
	if err != nil {
		return nil, err
	}
	if _, err := s.Transition(to, time.Now()); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *fakeSubs) GetCard(ctx context.Context, id, owner string) (*model.MembershipCard, error) {
	if _, err := f.owned(id, owner); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, domain.ErrCardNotFound
	}
	return c, nil
}

func (f *fakeSubs) VerifyCard(ctx context.Context, qr string) (*usecase.CardVerification, error) {
	return f.verify, f.verifyErr
}

type fakePayments struct {
	usecase.PaymentUseCase
	mu          sync.Mutex
	initiateIn  usecase.InitiatePaymentInput
	initiateErr error
	verifyCalls int
	verifyOwner string
	verifyErr   error
	webhookRef  string
	webhookErr  error
	pending     []*model.Payment
}

func (f *fakePayments) InitiateSubscriptionPayment(ctx context.Context, in usecase.InitiatePaymentInput) (*usecase.InitiateResult, error) {
	f.mu.Lock()
	f.initiateIn = in
	f.mu.Unlock()
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	p := &model.Payment{ID: "pay-1", Purpose: model.PaymentPurposeSubscription, ReferenceID: in.SubscriptionID, Gateway: in.Gateway, Amount: 10000, Currency: "XOF", Status: model.PaymentStatusPending}
	return &usecase.InitiateResult{Payment: p, RedirectURL: "https://pay.example/checkout", Status: p.Status}, nil
}

func (f *fakePayments) Verify(ctx context.Context, id, gw, owner string) (*usecase.VerifyResult, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.verifyOwner = owner
	f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	p := &model.Payment{ID: id, Gateway: gw, Status: model.PaymentStatusCompleted}
	return &usecase.VerifyResult{Success: true, Status: p.Status, Payment: p}, nil
}

func (f *fakePayments) HandleWebhook(ctx context.Context, gw, ref string) (*usecase.VerifyResult, error) {
	f.mu.Lock()
	f.webhookRef = ref
	f.mu.Unlock()
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	p := &model.Payment{ID: "pay-1", Gateway: gw, GatewayRef: ref, Status: model.PaymentStatusCompleted}
	return &usecase.VerifyResult{Success: true, Status: p.Status, Payment: p}, nil
}

func (f *fakePayments) PendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	return f.pending, nil
}

type fakeTokens struct {
	usecase.TokenUseCase
	purchaseIn  usecase.PurchaseInput
	purchase    *usecase.PurchaseResult
	purchaseErr error
	accounts    []*model.TokenAccount
}

func (f *fakeTokens) OpenAccount(ctx context.Context, userID, subID string, t model.TokenServiceType) (*model.TokenAccount, error) {
	return model.NewTokenAccount("acct-1", userID, subID, t, time.Now())
}

func (f *fakeTokens) PurchaseTokens(ctx context.Context, in usecase.PurchaseInput) (*usecase.PurchaseResult, error) {
	f.purchaseIn = in
	return f.purchase, f.purchaseErr
}

func (f *fakeTokens) ListAccounts(ctx context.Context, userID string) ([]*model.TokenAccount, error) {
	return f.accounts, nil
}

type fakeProducts struct {
	usecase.ProductUseCase
	catalog *model.Catalog
}

func (f *fakeProducts) ListCatalog(ctx context.Context) (*model.Catalog, error) {
	return f.catalog, nil
}

func (f *fakeProducts) Quote(ctx context.Context, userID, productID string, cycle int) (int64, string, error) {
	if productID != "prod-premium" {
		return 0, "", domain.ErrProductNotFound
	}
	return int64(cycle) * 1000, "XOF", nil
}

type fakeParser struct {
	ref string
	err error
}

func (p fakeParser) ParseWebhook(r *http.Request) (string, error) { return p.ref, p.err }

type fakeWebhooks struct {
	parsers map[string]payment.WebhookParser
}

func (f fakeWebhooks) Webhook(gw string) (payment.WebhookParser, error) {
	p, ok := f.parsers[gw]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return p, nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}
