package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/domain/ports/repository"
	ucport "elverra-membership/internal/domain/ports/usecase"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
)

// Compile-time checks
var (
	_ SubscriptionUseCase          = (*subscriptionUC)(nil)
	_ ucport.SubscriptionActivator = (*subscriptionUC)(nil)
)

// SubscriptionUseCase is the membership lifecycle controller: pending
// creation, activation with card issuance and user/admin status changes.
type SubscriptionUseCase interface {
	CreatePending(ctx context.Context, in CreatePendingInput) (*model.Subscription, error)
	// Activate is idempotent: a second call returns the existing subscription
	// and card together with domain.ErrAlreadyActive.
	Activate(ctx context.Context, subscriptionID, paymentID string) (*ucport.ActivationResult, error)
	// UpdateStatus applies a lifecycle transition. An empty requestingUserID
	// skips the ownership check (admin).
	UpdateStatus(ctx context.Context, subscriptionID string, to model.SubscriptionStatus, requestingUserID string) (*model.Subscription, error)
	Get(ctx context.Context, subscriptionID, requestingUserID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)
	GetCard(ctx context.Context, subscriptionID, requestingUserID string) (*model.MembershipCard, error)
	VerifyCard(ctx context.Context, qrData string) (*CardVerification, error)
	// ExpireStalePending cancels pending subscriptions older than olderThan
	// that never got a pending or completed payment.
	ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error)
	ExpireCards(ctx context.Context) (int, error)
}

type CreatePendingInput struct {
	UserID         string
	ProductID      string
	CycleMonths    int
	IsChild        bool
	IsRecurring    bool
	Holder         model.HolderInfo
	ChildName      *string
	ChildBirthdate *time.Time
}

// CardVerification is what a scanner learns from a QR payload.
type CardVerification struct {
	Valid              bool
	Card               *model.MembershipCard
	SubscriptionStatus model.SubscriptionStatus
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	cards    repository.CardRepository
	products repository.ProductRepository
	locks    repository.AdvisoryLocker
	tm       repository.TransactionManager
	codec    adapter.CardCodec
	events   adapter.EventPublisher
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	cards repository.CardRepository,
	products repository.ProductRepository,
	locks repository.AdvisoryLocker,
	tm repository.TransactionManager,
	codec adapter.CardCodec,
	events adapter.EventPublisher,
	logger *zerolog.Logger,
) *subscriptionUC {
	return &subscriptionUC{
		subs:     subs,
		cards:    cards,
		products: products,
		locks:    locks,
		tm:       tm,
		codec:    codec,
		events:   events,
		log:      logger,
		now:      time.Now,
	}
}

func categoryLockKey(userID string, isChild bool) string {
	return "membership:" + userID + ":child=" + strconv.FormatBool(isChild)
}

func (u *subscriptionUC) CreatePending(ctx context.Context, in CreatePendingInput) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CreatePending")()

	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, domain.ErrValidation
	}
	if in.CycleMonths == 0 {
		in.CycleMonths = model.DefaultCycleMonths
	}

	product, err := u.products.FindProduct(ctx, repository.NoTX, in.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, domain.ErrProductNotFound
	}

	sub, err := model.NewPendingSubscription(uuid.NewString(), in.UserID, product, in.CycleMonths, in.IsChild, in.Holder, in.ChildName, in.ChildBirthdate, u.now())
	if err != nil {
		return nil, err
	}
	sub.IsRecurring = in.IsRecurring

	if _, err := u.products.FindPricing(ctx, repository.NoTX, product.ID, in.CycleMonths); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no pricing for %d months", domain.ErrProductNotFound, in.CycleMonths)
		}
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.locks.LockKey(ctx, tx, categoryLockKey(in.UserID, in.IsChild)); err != nil {
			return err
		}
		if _, err := u.subs.FindActiveByUserAndCategory(ctx, tx, in.UserID, in.IsChild); err == nil {
			return domain.ErrDuplicateActiveSubscription
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return u.subs.Save(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncSubscriptionCreated(sub.IsChild)
	u.log.Info().Str("subscription_id", sub.ID).Str("user_id", sub.UserID).Bool("is_child", sub.IsChild).Msg("pending subscription created")
	publish(ctx, u.events, u.log, adapter.EventSubscriptionCreated, sub.ID, sub.UserID, map[string]string{
		"product_id":   sub.ProductID,
		"cycle_months": strconv.Itoa(sub.Metadata.Cycle()),
	})
	return sub, nil
}

func (u *subscriptionUC) Activate(ctx context.Context, subscriptionID, paymentID string) (*ucport.ActivationResult, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Activate")()

	if subscriptionID == "" {
		return nil, domain.ErrValidation
	}

	var (
		res     ucport.ActivationResult
		already bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrSubscriptionNotFound
			}
			return err
		}
		res.Subscription = sub

		if sub.Status == model.SubscriptionStatusActive {
			already = true
			card, err := u.cards.FindBySubscription(ctx, tx, sub.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			res.Card = card
			return nil
		}
		if sub.Status != model.SubscriptionStatusPending {
			return domain.ErrInvalidTransition
		}

		product, err := u.products.FindProduct(ctx, tx, sub.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrProductNotFound
			}
			return err
		}

		if err := u.locks.LockKey(ctx, tx, categoryLockKey(sub.UserID, sub.IsChild)); err != nil {
			return err
		}
		if other, err := u.subs.FindActiveByUserAndCategory(ctx, tx, sub.UserID, sub.IsChild); err == nil && other.ID != sub.ID {
			return domain.ErrDuplicateActiveSubscription
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := u.now()
		if err := sub.Activate(paymentID, now); err != nil {
			return err
		}
		if product.Name != "" {
			sub.Metadata.ProductName = product.Name
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		card, err := u.issueCard(sub, now)
		if err != nil {
			return err
		}
		if err := u.cards.Insert(ctx, tx, card); err != nil {
			return err
		}
		res.Card = card
		return nil
	})
	if err != nil {
		metrics.IncActivation(activationResult(err))
		if errors.Is(err, domain.ErrDuplicateActiveSubscription) {
			u.log.Warn().Str("subscription_id", subscriptionID).Msg("activation blocked by another active subscription")
		}
		return nil, err
	}
	if already {
		metrics.IncActivation("already_active")
		return &res, domain.ErrAlreadyActive
	}

	metrics.IncActivation("activated")
	sub := res.Subscription
	u.log.Info().Str("subscription_id", sub.ID).Str("card", res.Card.CardIdentifier).Time("end_date", *sub.EndDate).Msg("subscription activated")
	publish(ctx, u.events, u.log, adapter.EventSubscriptionActivated, sub.ID, sub.UserID, map[string]string{
		"payment_id": paymentID,
		"end_date":   sub.EndDate.UTC().Format(time.RFC3339),
	})
	publish(ctx, u.events, u.log, adapter.EventCardIssued, res.Card.ID, sub.UserID, map[string]string{
		"card_identifier": res.Card.CardIdentifier,
		"subscription_id": sub.ID,
	})
	return &res, nil
}

func (u *subscriptionUC) issueCard(sub *model.Subscription, now time.Time) (*model.MembershipCard, error) {
	identifier := u.codec.NewIdentifier()
	qr, err := u.codec.Encode(adapter.CardClaims{
		CardIdentifier: identifier,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		IssuedAt:       now.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode card payload: %w", err)
	}
	return model.NewMembershipCard(uuid.NewString(), identifier, qr, sub, now)
}

func activationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrDuplicateActiveSubscription):
		return "duplicate_active"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_missing"
	}
	return "error"
}

func (u *subscriptionUC) UpdateStatus(ctx context.Context, subscriptionID string, to model.SubscriptionStatus, requestingUserID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.UpdateStatus")()
	return u.transition(ctx, subscriptionID, "", to, requestingUserID)
}

// errStatusMoved is returned by a guarded transition whose subscription left
// the expected status before the row lock was taken.
var errStatusMoved = errors.New("subscription status moved")

// transition applies a status change under the row lock. A non-empty expect
// makes the change conditional on the locked row still being in that status.
func (u *subscriptionUC) transition(ctx context.Context, subscriptionID string, expect, to model.SubscriptionStatus, requestingUserID string) (*model.Subscription, error) {
	var (
		sub     *model.Subscription
		from    model.SubscriptionStatus
		changed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrSubscriptionNotFound
			}
			return err
		}
		if requestingUserID != "" && s.UserID != requestingUserID {
			return domain.ErrUnauthorized
		}
		if expect != "" && s.Status != expect {
			return errStatusMoved
		}
		sub, from = s, s.Status

		now := u.now()
		changed, err = s.Transition(to, now)
		if err != nil || !changed {
			return err
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}

		// pending subscriptions never got a card
		if from == model.SubscriptionStatusPending {
			return nil
		}
		var expiry *time.Time
		if to == model.SubscriptionStatusActive {
			expiry = s.EndDate
		}
		if err := u.cards.UpdateStatus(ctx, tx, s.ID, model.CardStatusFor(to), expiry); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return sub, nil
	}

	metrics.IncTransition(from, to)
	u.log.Info().Str("subscription_id", sub.ID).Str("from", string(from)).Str("to", string(to)).Msg("subscription status changed")
	publish(ctx, u.events, u.log, adapter.EventSubscriptionStatusChanged, sub.ID, sub.UserID, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return sub, nil
}

func (u *subscriptionUC) Get(ctx context.Context, subscriptionID, requestingUserID string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Get")()
	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	if requestingUserID != "" && sub.UserID != requestingUserID {
		// do not leak existence to other users
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (u *subscriptionUC) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ListByUser")()
	if userID == "" {
		return nil, domain.ErrValidation
	}
	return u.subs.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) GetCard(ctx context.Context, subscriptionID, requestingUserID string) (*model.MembershipCard, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.GetCard")()
	if _, err := u.Get(ctx, subscriptionID, requestingUserID); err != nil {
		return nil, err
	}
	card, err := u.cards.FindBySubscription(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCardNotFound
		}
		return nil, err
	}
	return card, nil
}

func (u *subscriptionUC) VerifyCard(ctx context.Context, qrData string) (*CardVerification, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.VerifyCard")()

	claims, err := u.codec.Decode(qrData)
	if err != nil {
		return nil, err
	}
	card, err := u.cards.FindByIdentifier(ctx, repository.NoTX, claims.CardIdentifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCardNotFound
		}
		return nil, err
	}
	if card.SubscriptionID != claims.SubscriptionID || card.UserID != claims.UserID {
		return nil, domain.ErrInvalidCardPayload
	}
	sub, err := u.subs.FindByID(ctx, repository.NoTX, card.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	valid := card.Status == model.CardStatusActive &&
		sub.Status == model.SubscriptionStatusActive &&
		u.now().Before(card.CardExpiryDate)
	return &CardVerification{Valid: valid, Card: card, SubscriptionStatus: sub.Status}, nil
}

const stalePendingBatch = 200

func (u *subscriptionUC) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExpireStalePending")()
	if olderThan <= 0 {
		return 0, nil
	}
	stale, err := u.subs.ListStalePending(ctx, repository.NoTX, u.now().Add(-olderThan), stalePendingBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range stale {
		_, err := u.transition(ctx, s.ID, model.SubscriptionStatusPending, model.SubscriptionStatusCancelled, "")
		switch {
		case errors.Is(err, errStatusMoved):
			// activated or cancelled since the listing
			u.log.Debug().Str("subscription_id", s.ID).Msg("stale pending skipped")
			continue
		case err != nil:
			u.log.Warn().Err(err).Str("subscription_id", s.ID).Msg("stale pending not cancelled")
			continue
		}
		n++
	}
	metrics.AddPendingReaped(n)
	return n, nil
}

func (u *subscriptionUC) ExpireCards(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExpireCards")()
	n, err := u.cards.ExpireBefore(ctx, repository.NoTX, u.now())
	if err != nil {
		return 0, err
	}
	metrics.AddCardsExpired(int(n))
	if counts, err := u.subs.CountByStatus(ctx, repository.NoTX); err == nil {
		metrics.SetSubscriptionsTotal(counts)
	} else {
		u.log.Warn().Err(err).Msg("subscription counts unavailable")
	}
	return int(n), nil
}
