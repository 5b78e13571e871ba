package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/domain/ports/repository"
	ucport "elverra-membership/internal/domain/ports/usecase"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase starts gateway payments and turns confirmed payments into
// activated subscriptions or credited tokens. Every entry point (verify
// endpoint, webhook, reconciler) goes through the same idempotent fulfilment.
type PaymentUseCase interface {
	InitiateSubscriptionPayment(ctx context.Context, in InitiatePaymentInput) (*InitiateResult, error)
	// Verify checks a payment with its gateway unless the local record is
	// already terminal. An empty requestingUserID skips the ownership check.
	Verify(ctx context.Context, paymentID, gateway, requestingUserID string) (*VerifyResult, error)
	// HandleWebhook resolves ref as our payment id or the gateway's transaction
	// id and verifies it. The callback body is never trusted for the status.
	HandleWebhook(ctx context.Context, gateway, ref string) (*VerifyResult, error)
	// PendingPayments lists non-terminal payments created before now-olderThan.
	PendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error)
}

type InitiatePaymentInput struct {
	SubscriptionID   string
	Gateway          string
	Phone            string
	CustomerEmail    string
	RequestingUserID string
}

type InitiateResult struct {
	Payment     *model.Payment
	RedirectURL string
	Status      model.PaymentStatus
}

type VerifyResult struct {
	Success bool
	Status  model.PaymentStatus
	Payment *model.Payment
}

type paymentUC struct {
	payments  repository.PaymentRepository
	subs      repository.SubscriptionRepository
	products  repository.ProductRepository
	gateways  adapter.GatewayRegistry
	activator ucport.SubscriptionActivator
	tokens    ucport.TokenCompleter
	locker    adapter.Locker
	lockTTL   time.Duration
	events    adapter.EventPublisher
	starter   *paymentStarter
	log       *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	products repository.ProductRepository,
	gateways adapter.GatewayRegistry,
	activator ucport.SubscriptionActivator,
	tokens ucport.TokenCompleter,
	locker adapter.Locker,
	lockTTL time.Duration,
	events adapter.EventPublisher,
	settings PaymentSettings,
	logger *zerolog.Logger,
) *paymentUC {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &paymentUC{
		payments:  payments,
		subs:      subs,
		products:  products,
		gateways:  gateways,
		activator: activator,
		tokens:    tokens,
		locker:    locker,
		lockTTL:   lockTTL,
		events:    events,
		starter:   &paymentStarter{payments: payments, settings: settings, log: logger},
		log:       logger,
	}
}

func paymentLockKey(id string) string { return "lock:payment:" + id }

func (u *paymentUC) InitiateSubscriptionPayment(ctx context.Context, in InitiatePaymentInput) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.InitiateSubscriptionPayment")()

	if in.SubscriptionID == "" || in.Gateway == "" {
		return nil, domain.ErrValidation
	}
	gw, err := u.gateways.Get(in.Gateway)
	if err != nil {
		return nil, err
	}
	phone, err := gw.ValidatePhone(in.Phone)
	if err != nil {
		return nil, err
	}

	sub, err := u.subs.FindByID(ctx, repository.NoTX, in.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	if in.RequestingUserID != "" && sub.UserID != in.RequestingUserID {
		return nil, domain.ErrUnauthorized
	}
	switch sub.Status {
	case model.SubscriptionStatusPending:
	case model.SubscriptionStatusActive:
		return nil, domain.ErrAlreadyActive
	default:
		return nil, domain.ErrInvalidTransition
	}
	paid, err := u.payments.HasCompletedForReference(ctx, repository.NoTX, model.PaymentPurposeSubscription, sub.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, fmt.Errorf("%w: subscription already paid", domain.ErrAlreadyActive)
	}

	pricing, err := u.products.FindPricing(ctx, repository.NoTX, sub.ProductID, sub.Metadata.Cycle())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	renewal, err := u.subs.HasActivated(ctx, repository.NoTX, sub.UserID, sub.IsChild)
	if err != nil {
		return nil, err
	}

	p := &model.Payment{
		ID:          uuid.NewString(),
		UserID:      sub.UserID,
		Purpose:     model.PaymentPurposeSubscription,
		ReferenceID: sub.ID,
		Amount:      pricing.Price(renewal),
		Phone:       phone,
	}
	res, err := u.starter.start(ctx, gw, p, adapter.PaymentRequest{
		Phone:         in.Phone,
		CustomerName:  sub.Metadata.HolderFullName,
		CustomerEmail: in.CustomerEmail,
		Description:   fmt.Sprintf("%s %d mois", sub.Metadata.ProductName, sub.Metadata.Cycle()),
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("payment_id", p.ID).Str("subscription_id", sub.ID).Str("gateway", p.Gateway).
		Int64("amount", p.Amount).Bool("renewal", renewal).Msg("subscription payment initiated")
	return &InitiateResult{Payment: p, RedirectURL: res.RedirectURL, Status: p.Status}, nil
}

func (u *paymentUC) Verify(ctx context.Context, paymentID, gateway, requestingUserID string) (*VerifyResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Verify")()

	if paymentID == "" {
		return nil, domain.ErrValidation
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if requestingUserID != "" && p.UserID != requestingUserID {
		return nil, domain.ErrPaymentNotFound
	}
	if gateway != "" && gateway != p.Gateway {
		return nil, fmt.Errorf("%w: payment %s belongs to %s", domain.ErrValidation, p.ID, p.Gateway)
	}

	token, err := u.locker.TryLock(ctx, paymentLockKey(p.ID), u.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentInProgress) {
			// another verifier is on it; report what we know
			metrics.IncVerify("busy", "")
			return resultFor(p), nil
		}
		return nil, err
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), paymentLockKey(p.ID), token); err != nil {
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("payment lock release failed")
		}
	}()

	// re-read under the lock
	if p, err = u.payments.FindByID(ctx, repository.NoTX, paymentID); err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		if p.Status == model.PaymentStatusCompleted {
			if err := u.fulfil(ctx, p); err != nil {
				return nil, err
			}
		}
		metrics.IncVerify("local", string(p.Status))
		return resultFor(p), nil
	}

	gw, err := u.gateways.Get(p.Gateway)
	if err != nil {
		return nil, err
	}
	st, err := gw.CheckStatus(ctx, adapter.StatusQuery{TransactionID: p.GatewayRef, Reference: p.ID, Amount: p.Amount})
	if err != nil {
		metrics.IncVerify("error", adapter.MessageKey(err))
		return nil, err
	}

	next, terminal := paymentStatusFor(st)
	if !terminal {
		metrics.IncVerify("pending", "")
		return resultFor(p), nil
	}

	var paidAt *time.Time
	if next == model.PaymentStatusCompleted {
		now := time.Now()
		paidAt = &now
	}
	changed, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, next, string(st), paidAt)
	if err != nil {
		return nil, err
	}
	if changed {
		p.Status, p.PaidAt = next, paidAt
		metrics.IncPayment(p.Gateway, string(next))
		u.log.Info().Str("payment_id", p.ID).Str("gateway", p.Gateway).Str("status", string(next)).Msg("payment settled")
	} else if p, err = u.payments.FindByID(ctx, repository.NoTX, paymentID); err != nil {
		return nil, err
	}

	switch p.Status {
	case model.PaymentStatusCompleted:
		if changed {
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
			publish(ctx, u.events, u.log, adapter.EventPaymentCompleted, p.ID, p.UserID, map[string]string{
				"purpose":      string(p.Purpose),
				"reference_id": p.ReferenceID,
				"amount":       strconv.FormatInt(p.Amount, 10),
				"gateway":      p.Gateway,
			})
		}
		if err := u.fulfil(ctx, p); err != nil {
			return nil, err
		}
	case model.PaymentStatusFailed, model.PaymentStatusCancelled:
		if p.Purpose == model.PaymentPurposeTokens {
			if _, err := u.tokens.CompleteTransaction(ctx, p.ReferenceID, false); err != nil {
				return nil, err
			}
		}
	}
	metrics.IncVerify("gateway", string(p.Status))
	return resultFor(p), nil
}

// fulfil applies a completed payment. It is safe to run more than once.
func (u *paymentUC) fulfil(ctx context.Context, p *model.Payment) error {
	switch p.Purpose {
	case model.PaymentPurposeSubscription:
		_, err := u.activator.Activate(ctx, p.ReferenceID, p.ID)
		switch {
		case err == nil, errors.Is(err, domain.ErrAlreadyActive):
			return nil
		case errors.Is(err, domain.ErrDuplicateActiveSubscription), errors.Is(err, domain.ErrInvalidTransition):
			// money collected for a subscription that can no longer activate
			u.log.Error().Err(err).Str("payment_id", p.ID).Str("subscription_id", p.ReferenceID).Msg("paid subscription cannot be activated; manual review needed")
			return nil
		}
		return err
	case model.PaymentPurposeTokens:
		_, err := u.tokens.CompleteTransaction(ctx, p.ReferenceID, true)
		return err
	}
	return fmt.Errorf("unknown payment purpose %q", p.Purpose)
}

func paymentStatusFor(s adapter.GatewayStatus) (model.PaymentStatus, bool) {
	switch s {
	case adapter.GatewayStatusCompleted:
		return model.PaymentStatusCompleted, true
	case adapter.GatewayStatusFailed:
		return model.PaymentStatusFailed, true
	case adapter.GatewayStatusCancelled:
		return model.PaymentStatusCancelled, true
	}
	return model.PaymentStatusPending, false
}

func resultFor(p *model.Payment) *VerifyResult {
	st := p.Status
	if st == model.PaymentStatusInitiated {
		st = model.PaymentStatusPending
	}
	return &VerifyResult{Success: st == model.PaymentStatusCompleted, Status: st, Payment: p}
}

func (u *paymentUC) HandleWebhook(ctx context.Context, gateway, ref string) (*VerifyResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.HandleWebhook")()

	if ref == "" {
		return nil, domain.ErrValidation
	}
	p, err := u.payments.FindByID(ctx, repository.NoTX, ref)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		p, err = u.payments.FindByGatewayRef(ctx, repository.NoTX, gateway, ref)
	}
	if err != nil {
		metrics.IncWebhook(gateway, "unknown_ref")
		return nil, err
	}
	if p.Gateway != gateway {
		metrics.IncWebhook(gateway, "gateway_mismatch")
		return nil, domain.ErrPaymentNotFound
	}
	res, err := u.Verify(ctx, p.ID, gateway, "")
	if err != nil {
		metrics.IncWebhook(gateway, "error")
		return nil, err
	}
	metrics.IncWebhook(gateway, string(res.Status))
	return res, nil
}

func (u *paymentUC) PendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.PendingPayments")()
	return u.payments.ListPendingOlderThan(ctx, repository.NoTX, time.Now().Add(-olderThan), limit)
}
