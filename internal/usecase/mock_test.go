//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// -----------------------------
// Transactions and locks
// -----------------------------

type MockTxManager struct {
	mu    sync.Mutex
	Calls int

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

type MockAdvisoryLocker struct {
	mu   sync.Mutex
	Keys []string
}

var _ repository.AdvisoryLocker = (*MockAdvisoryLocker)(nil)

func (l *MockAdvisoryLocker) LockKey(ctx context.Context, tx repository.Tx, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	return nil
}

// MockLocker is an in-memory adapter.Locker.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

var _ adapter.Locker = (*MockLocker)(nil)

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrPaymentInProgress
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("unlock token mismatch")
	}
	delete(l.held, key)
	return nil
}

// Hold simulates a concurrent verifier owning the lock.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// -----------------------------
// Repositories (in-memory)
// -----------------------------

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	byID map[string]model.Subscription

	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	// Payments, when set, hides subscriptions with an in-flight or completed
	// payment from ListStalePending.
	Payments *MockPaymentRepo
	// AfterListStale runs once ListStalePending has released the lock.
	AfterListStale func()
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byID: map[string]model.Subscription{}}
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Status == model.SubscriptionStatusActive {
		for id, o := range r.byID {
			if id != s.ID && o.UserID == s.UserID && o.IsChild == s.IsChild && o.Status == model.SubscriptionStatusActive {
				return domain.ErrDuplicateActiveSubscription
			}
		}
	}
	r.byID[s.ID] = *s
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.byID {
		if s.UserID == userID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MockSubscriptionRepo) FindActiveByUserAndCategory(ctx context.Context, tx repository.Tx, userID string, isChild bool) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID && s.IsChild == isChild && s.Status == model.SubscriptionStatusActive {
			s := s
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) HasActivated(ctx context.Context, tx repository.Tx, userID string, isChild bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID && s.IsChild == isChild && s.Metadata.ActivatedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockSubscriptionRepo) ListStalePending(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	r.mu.Lock()
	var out []*model.Subscription
	for _, s := range r.byID {
		if s.Status != model.SubscriptionStatusPending || !s.CreatedAt.Before(olderThan) {
			continue
		}
		if r.Payments != nil && r.Payments.hasLivePayment(s.ID) {
			continue
		}
		s := s
		out = append(out, &s)
	}
	r.mu.Unlock()
	if r.AfterListStale != nil {
		r.AfterListStale()
	}
	return out, nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.byID {
		out[s.Status]++
	}
	return out, nil
}

// Put stores a subscription as-is, bypassing the active uniqueness check.
func (r *MockSubscriptionRepo) Put(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = *s
}

type MockCardRepo struct {
	mu    sync.Mutex
	bySub map[string]model.MembershipCard

	InsertFunc func(ctx context.Context, tx repository.Tx, c *model.MembershipCard) error
}

func NewMockCardRepo() *MockCardRepo {
	return &MockCardRepo{bySub: map[string]model.MembershipCard{}}
}

var _ repository.CardRepository = (*MockCardRepo)(nil)

func (r *MockCardRepo) Insert(ctx context.Context, tx repository.Tx, c *model.MembershipCard) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySub[c.SubscriptionID]; ok {
		return domain.ErrAlreadyExists
	}
	r.bySub[c.SubscriptionID] = *c
	return nil
}

func (r *MockCardRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.MembershipCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bySub[subscriptionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *MockCardRepo) FindByIdentifier(ctx context.Context, tx repository.Tx, identifier string) (*model.MembershipCard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.bySub {
		if c.CardIdentifier == identifier {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockCardRepo) UpdateStatus(ctx context.Context, tx repository.Tx, subscriptionID string, status model.CardStatus, expiry *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bySub[subscriptionID]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	if expiry != nil {
		c.CardExpiryDate = *expiry
	}
	r.bySub[subscriptionID] = c
	return nil
}

func (r *MockCardRepo) ExpireBefore(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.bySub {
		if c.Status == model.CardStatusActive && c.CardExpiryDate.Before(now) {
			c.Status = model.CardStatusExpired
			r.bySub[id] = c
			n++
		}
	}
	return n, nil
}

func (r *MockCardRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySub)
}

type MockProductRepo struct {
	mu       sync.Mutex
	products map[string]model.MembershipProduct
	pricing  map[string]model.MembershipPricing
	cycles   map[int]model.MembershipCycle
}

func NewMockProductRepo() *MockProductRepo {
	return &MockProductRepo{
		products: map[string]model.MembershipProduct{},
		pricing:  map[string]model.MembershipPricing{},
		cycles:   map[int]model.MembershipCycle{},
	}
}

var _ repository.ProductRepository = (*MockProductRepo)(nil)

func pricingKey(productID string, months int) string { return fmt.Sprintf("%s:%d", productID, months) }

func (r *MockProductRepo) SaveProduct(ctx context.Context, tx repository.Tx, p *model.MembershipProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = *p
	return nil
}

func (r *MockProductRepo) SavePricing(ctx context.Context, tx repository.Tx, p *model.MembershipPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pricing[pricingKey(p.ProductID, p.CycleMonths)] = *p
	return nil
}

func (r *MockProductRepo) SaveCycle(ctx context.Context, tx repository.Tx, c *model.MembershipCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[c.Months] = *c
	return nil
}

func (r *MockProductRepo) FindProduct(ctx context.Context, tx repository.Tx, id string) (*model.MembershipProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockProductRepo) FindPricing(ctx context.Context, tx repository.Tx, productID string, cycleMonths int) (*model.MembershipPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pricing[pricingKey(productID, cycleMonths)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockProductRepo) ListActiveProducts(ctx context.Context, tx repository.Tx) ([]*model.MembershipProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipProduct
	for _, p := range r.products {
		if p.IsActive {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockProductRepo) ListPricing(ctx context.Context, tx repository.Tx) ([]*model.MembershipPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipPricing
	for _, p := range r.pricing {
		p := p
		out = append(out, &p)
	}
	return out, nil
}

func (r *MockProductRepo) ListCycles(ctx context.Context, tx repository.Tx) ([]*model.MembershipCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MembershipCycle
	for _, c := range r.cycles {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

type MockPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]model.Payment

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byID: map[string]model.Payment{}}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

// hasLivePayment reports an initiated, pending or completed subscription payment.
func (r *MockPaymentRepo) hasLivePayment(subscriptionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.Purpose != model.PaymentPurposeSubscription || p.ReferenceID != subscriptionID {
			continue
		}
		switch p.Status {
		case model.PaymentStatusInitiated, model.PaymentStatusPending, model.PaymentStatusCompleted:
			return true
		}
	}
	return false
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = *p
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *MockPaymentRepo) FindByGatewayRef(ctx context.Context, tx repository.Tx, gateway, ref string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.Gateway == gateway && p.GatewayRef == ref {
			p := p
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, reason string, paidAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || (p.Status != model.PaymentStatusPending && p.Status != model.PaymentStatusInitiated) {
		return false, nil
	}
	p.Status, p.FailureReason, p.PaidAt = status, reason, paidAt
	r.byID[id] = p
	return true, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.byID {
		if !p.Status.IsTerminal() && p.CreatedAt.Before(olderThan) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) HasCompletedForReference(ctx context.Context, tx repository.Tx, purpose model.PaymentPurpose, referenceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.Purpose == purpose && p.ReferenceID == referenceID && p.Status == model.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) All() []model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Payment, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

type MockTokenAccountRepo struct {
	mu   sync.Mutex
	byID map[string]model.TokenAccount
}

func NewMockTokenAccountRepo() *MockTokenAccountRepo {
	return &MockTokenAccountRepo{byID: map[string]model.TokenAccount{}}
}

var _ repository.TokenAccountRepository = (*MockTokenAccountRepo)(nil)

func (r *MockTokenAccountRepo) Insert(ctx context.Context, tx repository.Tx, a *model.TokenAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.byID {
		if o.UserID == a.UserID && o.MembershipSubscriptionID == a.MembershipSubscriptionID && o.Type == a.Type {
			return domain.ErrAlreadyExists
		}
	}
	r.byID[a.ID] = *a
	return nil
}

func (r *MockTokenAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TokenAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrTokenAccountNotFound
	}
	return &a, nil
}

func (r *MockTokenAccountRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.TokenAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TokenAccount
	for _, a := range r.byID {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (r *MockTokenAccountRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return 0, domain.ErrTokenAccountNotFound
	}
	a.TokenBalance += delta
	r.byID[id] = a
	return a.TokenBalance, nil
}

type MockTokenTxRepo struct {
	mu   sync.Mutex
	byID map[string]model.TokenTransaction

	SaveFunc func(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error
}

func NewMockTokenTxRepo() *MockTokenTxRepo {
	return &MockTokenTxRepo{byID: map[string]model.TokenTransaction{}}
}

var _ repository.TokenTransactionRepository = (*MockTokenTxRepo)(nil)

func (r *MockTokenTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, tx, t); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = *t
	return nil
}

func (r *MockTokenTxRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TokenTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *MockTokenTxRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, limit int) ([]*model.TokenTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TokenTransaction
	for _, t := range r.byID {
		if t.AccountID == accountID {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *MockTokenTxRepo) SumSince(ctx context.Context, tx repository.Tx, accountID string, from time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, t := range r.byID {
		if t.AccountID == accountID && t.Status != model.TokenTxFailed && !t.CreatedAt.Before(from) {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (r *MockTokenTxRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id string, status model.TokenTransactionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Status != model.TokenTxPending {
		return false, nil
	}
	t.Status = status
	r.byID[id] = t
	return true, nil
}

// -----------------------------
// Adapters
// -----------------------------

type MockGateway struct {
	mu        sync.Mutex
	NameValue string
	Initiated []adapter.PaymentRequest
	Checks    int

	InitiateFunc    func(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error)
	CheckStatusFunc func(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string {
	if g.NameValue == "" {
		return "orange_money"
	}
	return g.NameValue
}

func (g *MockGateway) ValidatePhone(phone string) (string, error) {
	if len(phone) != 8 {
		return "", adapter.NewInvalidInputError(g.Name(), "payment.invalid_phone")
	}
	return "223" + phone, nil
}

func (g *MockGateway) InitiatePayment(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	g.mu.Lock()
	g.Initiated = append(g.Initiated, req)
	g.mu.Unlock()
	if g.InitiateFunc != nil {
		return g.InitiateFunc(ctx, req)
	}
	return &adapter.PaymentResult{
		Success:       true,
		TransactionID: "gw-" + req.Reference,
		RedirectURL:   "https://gw.test/pay/" + req.Reference,
		Status:        adapter.GatewayStatusPending,
	}, nil
}

func (g *MockGateway) CheckStatus(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error) {
	g.mu.Lock()
	g.Checks++
	g.mu.Unlock()
	if g.CheckStatusFunc != nil {
		return g.CheckStatusFunc(ctx, q)
	}
	return adapter.GatewayStatusPending, nil
}

type MockRegistry map[string]adapter.PaymentGateway

var _ adapter.GatewayRegistry = MockRegistry(nil)

func (r MockRegistry) Get(name string) (adapter.PaymentGateway, error) {
	g, ok := r[name]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return g, nil
}

// MockCardCodec issues sequential identifiers and a transparent payload.
type MockCardCodec struct {
	mu  sync.Mutex
	seq int
}

var _ adapter.CardCodec = (*MockCardCodec)(nil)

func (c *MockCardCodec) NewIdentifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("ELV-TEST%04d", c.seq)
}

func (c *MockCardCodec) Encode(cl adapter.CardClaims) (string, error) {
	return cl.CardIdentifier + "|" + cl.SubscriptionID + "|" + cl.UserID, nil
}

func (c *MockCardCodec) Decode(payload string) (adapter.CardClaims, error) {
	var cl adapter.CardClaims
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return cl, domain.ErrInvalidCardPayload
	}
	cl.CardIdentifier, cl.SubscriptionID, cl.UserID = parts[0], parts[1], parts[2]
	return cl, nil
}

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.Event
	Err    error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) Publish(ctx context.Context, e adapter.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, e)
	return p.Err
}

func (p *MockPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Events))
	for i, e := range p.Events {
		out[i] = e.Name
	}
	return out
}
