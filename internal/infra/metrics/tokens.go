package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tokenPurchasesTotal, tokensCreditedTotal) }

var (
	tokenPurchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_purchases_total",
			Help: "Token purchases by service type, payment method and resulting status.",
		},
		[]string{"type", "method", "status"},
	)

	tokensCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_credited_total",
			Help: "Tokens credited to accounts, by service type.",
		},
		[]string{"type"},
	)
)

func IncTokenPurchase(serviceType, method, status string) {
	tokenPurchasesTotal.WithLabelValues(norm(serviceType), norm(method), norm(status)).Inc()
}

func AddTokensCredited(serviceType string, n int) {
	tokensCreditedTotal.WithLabelValues(norm(serviceType)).Add(float64(n))
}
