package poller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
)

// DefaultInterval matches the cadence mobile-money users expect between
// confirming on their phone and seeing the membership activate.
const DefaultInterval = 5 * time.Second

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled" // caller went away
)

// Status is one answer of the verification endpoint.
type Status struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"` // completed|failed|cancelled|pending|initiated
	PaymentID string `json:"paymentId"`
}

// Verifier asks the server for the current status of a payment.
type Verifier interface {
	Verify(ctx context.Context, paymentID, gateway string) (*Status, error)
}

// Poller repeatedly verifies one payment until it settles.
type Poller struct {
	Interval time.Duration
	Verifier Verifier
	Log      *zerolog.Logger
}

func New(v Verifier, interval time.Duration, logger *zerolog.Logger) *Poller {
	return &Poller{Interval: interval, Verifier: v, Log: logger}
}

// Run verifies immediately and then every Interval. It stops on a terminal
// status or when ctx is done; onCompleted runs once on success. Transient
// verify errors are logged and polling continues; permanent ones (bad input,
// wrong owner, unknown payment) end the run.
func (p *Poller) Run(ctx context.Context, paymentID, gateway string, onCompleted func(*Status)) (Outcome, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := p.logger(ctx).With().Str("payment_id", paymentID).Str("gateway", gateway).Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		st, err := p.Verifier.Verify(ctx, paymentID, gateway)
		switch {
		case err != nil && ctx.Err() != nil:
			// cancellation surfaced through the request; handled below
		case err != nil && isPermanent(err):
			metrics.IncPollerOutcome(string(OutcomeFailed))
			return OutcomeFailed, err
		case err != nil:
			log.Warn().Err(err).Int("attempt", attempt).Msg("verify failed; will retry")
		default:
			switch st.Status {
			case "completed":
				metrics.IncPollerOutcome(string(OutcomeCompleted))
				log.Info().Int("attempt", attempt).Msg("payment completed")
				if onCompleted != nil {
					onCompleted(st)
				}
				return OutcomeCompleted, nil
			case "failed", "cancelled":
				metrics.IncPollerOutcome(string(OutcomeFailed))
				log.Info().Str("status", st.Status).Msg("payment did not complete")
				return OutcomeFailed, domain.ErrPaymentFailed
			}
			log.Debug().Str("status", st.Status).Int("attempt", attempt).Msg("payment still pending")
		}

		select {
		case <-ctx.Done():
			metrics.IncPollerOutcome(string(OutcomeCancelled))
			return OutcomeCancelled, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) logger(ctx context.Context) *zerolog.Logger {
	if p.Log == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return logging.With(ctx, p.Log)
}

// isPermanent reports errors that no amount of polling can fix.
func isPermanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
			return false
		}
		return se.Code >= 400 && se.Code < 500
	}
	return false
}
