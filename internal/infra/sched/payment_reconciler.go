package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/worker"
	"elverra-membership/internal/usecase"
)

// PaymentVerifier is the slice of the payment use case the reconciler needs.
type PaymentVerifier interface {
	PendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Payment, error)
	Verify(ctx context.Context, paymentID, gateway, requestingUserID string) (*usecase.VerifyResult, error)
}

// PaymentReconciler re-checks payments still waiting on the provider. It
// settles payments whose client stopped polling and whose webhook never came.
type PaymentReconciler struct {
	payments  PaymentVerifier
	pool      *worker.Pool
	olderThan time.Duration
	batch     int
	log       *zerolog.Logger
}

func NewPaymentReconciler(payments PaymentVerifier, pool *worker.Pool, olderThan time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if olderThan <= 0 {
		olderThan = 2 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{payments: payments, pool: pool, olderThan: olderThan, batch: batch, log: &l}
}

func (r *PaymentReconciler) Name() string { return "payment_reconcile" }

func (r *PaymentReconciler) RunOnce(ctx context.Context) error {
	defer logging.TraceDuration(r.log, "PaymentReconciler.RunOnce")()

	pending, err := r.payments.PendingPayments(ctx, r.olderThan, r.batch)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		wg      sync.WaitGroup
		settled int32
		failed  int32
	)
	for _, p := range pending {
		p := p
		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()
			res, err := r.payments.Verify(logging.WithPaymentID(ctx, p.ID), p.ID, p.Gateway, "")
			if err != nil {
				atomic.AddInt32(&failed, 1)
				return err
			}
			if res.Status.IsTerminal() {
				atomic.AddInt32(&settled, 1)
			}
			return nil
		}
		if err := r.pool.SubmitWait(ctx, task); err != nil {
			wg.Done()
			r.log.Warn().Err(err).Msg("reconcile batch interrupted")
			break
		}
	}
	wg.Wait()

	r.log.Info().
		Int("checked", len(pending)).
		Int32("settled", atomic.LoadInt32(&settled)).
		Int32("errors", atomic.LoadInt32(&failed)).
		Msg("pending payments reconciled")
	return nil
}
