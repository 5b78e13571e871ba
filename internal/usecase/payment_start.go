package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/domain/ports/repository"
	"elverra-membership/internal/infra/metrics"
)

// PaymentSettings are the gateway-independent parameters of every payment.
type PaymentSettings struct {
	Currency  string
	ReturnURL string
	// NotifyURL builds the webhook URL a gateway calls back for a payment.
	NotifyURL func(gateway, paymentID string) string
}

func (s PaymentSettings) notifyURL(gateway, paymentID string) string {
	if s.NotifyURL == nil {
		return ""
	}
	return s.NotifyURL(gateway, paymentID)
}

// paymentStarter records a payment locally before reaching the gateway so a
// crash between the two never loses track of money in flight.
type paymentStarter struct {
	payments repository.PaymentRepository
	settings PaymentSettings
	log      *zerolog.Logger
}

func (s *paymentStarter) start(ctx context.Context, gw adapter.PaymentGateway, p *model.Payment, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	now := time.Now()
	p.Gateway = gw.Name()
	p.Currency = s.settings.Currency
	p.Status = model.PaymentStatusInitiated
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}

	req.Reference = p.ID
	req.Amount = p.Amount
	req.Currency = p.Currency
	req.ReturnURL = s.settings.ReturnURL
	req.NotifyURL = s.settings.notifyURL(gw.Name(), p.ID)

	res, err := gw.InitiatePayment(ctx, req)
	if err != nil {
		reason := adapter.MessageKey(err)
		if reason == "" {
			reason = err.Error()
		}
		if _, uerr := s.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed, reason, nil); uerr != nil {
			s.log.Error().Err(uerr).Str("payment_id", p.ID).Msg("failed to mark payment failed")
		}
		p.Status, p.FailureReason = model.PaymentStatusFailed, reason
		metrics.IncPayment(p.Gateway, string(model.PaymentStatusFailed))
		s.log.Warn().Err(err).Str("payment_id", p.ID).Str("gateway", p.Gateway).Msg("gateway refused payment")
		return nil, err
	}

	p.GatewayRef = res.TransactionID
	p.PayURL = res.RedirectURL
	p.Status = model.PaymentStatusPending
	p.UpdatedAt = time.Now()
	if err := s.payments.Save(ctx, repository.NoTX, p); err != nil {
		// the gateway holds a live payment; the reconciler picks it up by id
		s.log.Error().Err(err).Str("payment_id", p.ID).Str("gateway_ref", p.GatewayRef).Msg("failed to store gateway reference")
		return nil, err
	}
	metrics.IncPayment(p.Gateway, string(model.PaymentStatusPending))
	return res, nil
}
