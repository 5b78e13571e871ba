package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type CardExpirer interface {
	ExpireCards(ctx context.Context) (int, error)
}

// CardExpiryWorker marks cards past their expiry date as expired.
type CardExpiryWorker struct {
	subs CardExpirer
	log  *zerolog.Logger
}

func NewCardExpiryWorker(subs CardExpirer, logger *zerolog.Logger) *CardExpiryWorker {
	l := logger.With().Str("component", "CardExpiryWorker").Logger()
	return &CardExpiryWorker{subs: subs, log: &l}
}

func (w *CardExpiryWorker) Name() string { return "card_expiry" }

func (w *CardExpiryWorker) RunOnce(ctx context.Context) error {
	n, err := w.subs.ExpireCards(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("cards expired")
	}
	return nil
}

type StalePendingExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// StalePendingReaper cancels pending subscriptions whose checkout was
// abandoned. A zero ttl disables it.
type StalePendingReaper struct {
	subs StalePendingExpirer
	ttl  time.Duration
	log  *zerolog.Logger
}

func NewStalePendingReaper(subs StalePendingExpirer, ttl time.Duration, logger *zerolog.Logger) *StalePendingReaper {
	l := logger.With().Str("component", "StalePendingReaper").Logger()
	return &StalePendingReaper{subs: subs, ttl: ttl, log: &l}
}

func (w *StalePendingReaper) Name() string { return "stale_pending" }

func (w *StalePendingReaper) Enabled() bool { return w.ttl > 0 }

func (w *StalePendingReaper) RunOnce(ctx context.Context) error {
	if !w.Enabled() {
		return nil
	}
	n, err := w.subs.ExpireStalePending(ctx, w.ttl)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int("count", n).Dur("older_than", w.ttl).Msg("abandoned subscriptions cancelled")
	}
	return nil
}
