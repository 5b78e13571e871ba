//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/repository"
)

func seedCatalog(t *testing.T, ctx context.Context) (*model.MembershipProduct, *model.MembershipProduct) {
	t.Helper()
	products := NewProductRepo(testPool)
	for _, c := range []*model.MembershipCycle{{Months: 1, Label: "1 month"}, {Months: 12, Label: "12 months"}} {
		if err := products.SaveCycle(ctx, nil, c); err != nil {
			t.Fatalf("save cycle: %v", err)
		}
	}
	adult, _ := model.NewMembershipProduct("prod-premium", "Premium", model.ProductKindAdult, model.TierPremium)
	child, _ := model.NewMembershipProduct("prod-child", "Child", model.ProductKindChild, model.TierChild)
	for _, p := range []*model.MembershipProduct{adult, child} {
		if err := products.SaveProduct(ctx, nil, p); err != nil {
			t.Fatalf("save product: %v", err)
		}
	}
	if err := products.SavePricing(ctx, nil, &model.MembershipPricing{ProductID: adult.ID, CycleMonths: 12, PurchasePrice: 20000, RenewalPrice: 15000, Currency: "XOF"}); err != nil {
		t.Fatalf("save pricing: %v", err)
	}
	return adult, child
}

func newPending(t *testing.T, userID string, p *model.MembershipProduct) *model.Subscription {
	t.Helper()
	var childName *string
	if p.Kind == model.ProductKindChild {
		n := "Awa"
		childName = &n
	}
	s, err := model.NewPendingSubscription(uuid.NewString(), userID, p, 12, p.Kind == model.ProductKindChild,
		model.HolderInfo{FullName: "Moussa Traoré", City: "Bamako"}, childName, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("new pending: %v", err)
	}
	return s
}

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	subs := NewSubscriptionRepo(testPool)
	tm := NewTxManager(testPool)

	t.Run("should save, find and round trip metadata", func(t *testing.T) {
		resetMembershipTables(t)
		adult, _ := seedCatalog(t, ctx)
		s := newPending(t, "user-1", adult)
		if err := subs.Save(ctx, nil, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := subs.FindByID(ctx, nil, s.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Metadata.CycleMonths != 12 || got.Metadata.HolderFullName != "Moussa Traoré" {
			t.Errorf("metadata not persisted: %+v", got.Metadata)
		}
		if _, err := subs.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should reject a second active subscription of the same category", func(t *testing.T) {
		resetMembershipTables(t)
		adult, child := seedCatalog(t, ctx)
		now := time.Now().UTC()

		first := newPending(t, "user-1", adult)
		_ = first.Activate("pay-1", now)
		if err := subs.Save(ctx, nil, first); err != nil {
			t.Fatalf("save first: %v", err)
		}

		second := newPending(t, "user-1", adult)
		_ = subs.Save(ctx, nil, second)
		_ = second.Activate("pay-2", now)
		if err := subs.Save(ctx, nil, second); !errors.Is(err, domain.ErrDuplicateActiveSubscription) {
			t.Fatalf("expected ErrDuplicateActiveSubscription, got %v", err)
		}

		kid := newPending(t, "user-1", child)
		_ = kid.Activate("pay-3", now)
		if err := subs.Save(ctx, nil, kid); err != nil {
			t.Fatalf("child category must be independent, got %v", err)
		}

		activated, err := subs.HasActivated(ctx, nil, "user-1", false)
		if err != nil || !activated {
			t.Errorf("expected HasActivated true, got %v (%v)", activated, err)
		}
	})

	t.Run("should list stale pending without payments", func(t *testing.T) {
		resetMembershipTables(t)
		adult, _ := seedCatalog(t, ctx)
		old := newPending(t, "user-2", adult)
		old.CreatedAt = time.Now().Add(-2 * time.Hour)
		_ = subs.Save(ctx, nil, old)

		got, err := subs.ListStalePending(ctx, nil, time.Now().Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 || got[0].ID != old.ID {
			t.Errorf("expected the stale pending subscription, got %d items", len(got))
		}
	})

	t.Run("should skip stale pending with an initiated payment", func(t *testing.T) {
		resetMembershipTables(t)
		adult, _ := seedCatalog(t, ctx)
		now := time.Now().UTC()
		old := newPending(t, "user-3", adult)
		old.CreatedAt = now.Add(-2 * time.Hour)
		_ = subs.Save(ctx, nil, old)
		pay := &model.Payment{ID: uuid.NewString(), UserID: "user-3", Purpose: model.PaymentPurposeSubscription, ReferenceID: old.ID,
			Gateway: "sama_money", Amount: 20000, Currency: "XOF", Status: model.PaymentStatusInitiated, CreatedAt: now, UpdatedAt: now}
		if err := NewPaymentRepo(testPool).Save(ctx, nil, pay); err != nil {
			t.Fatalf("save payment: %v", err)
		}

		got, err := subs.ListStalePending(ctx, nil, now.Add(-time.Hour), 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no stale subscriptions, got %d", len(got))
		}
	})

	t.Run("should lock the row inside a transaction", func(t *testing.T) {
		resetMembershipTables(t)
		adult, _ := seedCatalog(t, ctx)
		s := newPending(t, "user-3", adult)
		_ = subs.Save(ctx, nil, s)

		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			got, err := subs.FindByID(ctx, tx, s.ID)
			if err != nil {
				return err
			}
			_, err = got.Transition(model.SubscriptionStatusCancelled, time.Now().UTC())
			if err != nil {
				return err
			}
			return subs.Save(ctx, tx, got)
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}
		got, _ := subs.FindByID(ctx, nil, s.ID)
		if got.Status != model.SubscriptionStatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
	})
}

func TestCardAndTokenRepos_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	subs := NewSubscriptionRepo(testPool)
	cards := NewCardRepo(testPool)
	accounts := NewTokenAccountRepo(testPool)
	txs := NewTokenTransactionRepo(testPool)
	payments := NewPaymentRepo(testPool)

	resetMembershipTables(t)
	adult, _ := seedCatalog(t, ctx)
	now := time.Now().UTC()
	s := newPending(t, "user-9", adult)
	_ = s.Activate("pay-9", now)
	if err := subs.Save(ctx, nil, s); err != nil {
		t.Fatalf("save sub: %v", err)
	}

	t.Run("should issue one card per subscription", func(t *testing.T) {
		c, _ := model.NewMembershipCard(uuid.NewString(), "ELV-A", "qr", s, now)
		if err := cards.Insert(ctx, nil, c); err != nil {
			t.Fatalf("insert: %v", err)
		}
		dup, _ := model.NewMembershipCard(uuid.NewString(), "ELV-B", "qr", s, now)
		if err := cards.Insert(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if err := cards.UpdateStatus(ctx, nil, s.ID, model.CardStatusInactive, nil); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := cards.FindByIdentifier(ctx, nil, "ELV-A")
		if err != nil || got.Status != model.CardStatusInactive {
			t.Errorf("expected inactive card, got %+v (%v)", got, err)
		}
	})

	t.Run("should credit and total token purchases", func(t *testing.T) {
		acc, _ := model.NewTokenAccount(uuid.NewString(), "user-9", s.ID, model.TokenServiceAuto, now)
		if err := accounts.Insert(ctx, nil, acc); err != nil {
			t.Fatalf("insert account: %v", err)
		}
		again, _ := model.NewTokenAccount(uuid.NewString(), "user-9", s.ID, model.TokenServiceAuto, now)
		if err := accounts.Insert(ctx, nil, again); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		pay := &model.Payment{ID: uuid.NewString(), UserID: "user-9", Purpose: model.PaymentPurposeTokens, ReferenceID: "tx",
			Gateway: "orange_money", Amount: 7500, Currency: "XOF", Status: model.PaymentStatusPending, CreatedAt: now, UpdatedAt: now}
		if err := payments.Save(ctx, nil, pay); err != nil {
			t.Fatalf("save payment: %v", err)
		}
		tt := &model.TokenTransaction{ID: uuid.NewString(), AccountID: acc.ID, Type: acc.Type, Amount: 10, TotalPrice: 7500,
			PaymentMethod: model.PaymentMethodOrangeMoney, PaymentID: &pay.ID, Status: model.TokenTxPending, CreatedAt: now, UpdatedAt: now}
		if err := txs.Save(ctx, nil, tt); err != nil {
			t.Fatalf("save tx: %v", err)
		}
		sum, err := txs.SumSince(ctx, nil, acc.ID, model.MonthStart(now))
		if err != nil || sum != 10 {
			t.Errorf("expected month sum 10, got %d (%v)", sum, err)
		}

		done, err := txs.CompleteIfPending(ctx, nil, tt.ID, model.TokenTxCompleted)
		if err != nil || !done {
			t.Fatalf("expected first completion, got %v (%v)", done, err)
		}
		done, _ = txs.CompleteIfPending(ctx, nil, tt.ID, model.TokenTxCompleted)
		if done {
			t.Error("second completion must be a no-op")
		}
		bal, err := accounts.AddBalance(ctx, nil, acc.ID, 10)
		if err != nil || bal != 10 {
			t.Errorf("expected balance 10, got %d (%v)", bal, err)
		}

		changed, err := payments.UpdateStatusIfPending(ctx, nil, pay.ID, model.PaymentStatusCompleted, "", &now)
		if err != nil || !changed {
			t.Fatalf("expected status change, got %v (%v)", changed, err)
		}
		changed, _ = payments.UpdateStatusIfPending(ctx, nil, pay.ID, model.PaymentStatusFailed, "late", nil)
		if changed {
			t.Error("terminal payment must not change again")
		}
	})
}
