package metrics

import (
	"elverra-membership/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsCreatedTotal,
		subscriptionActivationsTotal,
		subscriptionTransitionsTotal,
		subscriptionsTotal,
		cardsExpiredTotal,
		pendingReapedTotal,
	)
}

var (
	subscriptionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "Pending subscriptions created, by category.",
		},
		[]string{"category"}, // adult|child
	)

	subscriptionActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Activation attempts by result.",
		},
		[]string{"result"}, // activated|already_active|rejected|error
	)

	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Applied status transitions.",
		},
		[]string{"from", "to"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)

	cardsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "membership_cards_expired_total",
			Help: "Cards moved to expired by the expiry job.",
		},
	)

	pendingReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_pending_reaped_total",
			Help: "Stale pending subscriptions cancelled by the reaper.",
		},
	)
)

func IncSubscriptionCreated(isChild bool) {
	category := "adult"
	if isChild {
		category = "child"
	}
	subscriptionsCreatedTotal.WithLabelValues(category).Inc()
}

func IncActivation(result string) {
	subscriptionActivationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncTransition(from, to model.SubscriptionStatus) {
	subscriptionTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusPending,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPaused,
		model.SubscriptionStatusCancelled,
	}
	for _, status := range statuses {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func AddCardsExpired(n int) { cardsExpiredTotal.Add(float64(n)) }

func AddPendingReaped(n int) { pendingReapedTotal.Add(float64(n)) }
