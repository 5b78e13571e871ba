package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, pollerOutcomesTotal) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_job_runs_total",
			Help: "Background job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // status: ok|error
	)

	pollerOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_poller_outcomes_total",
			Help: "Payment poller terminations by outcome.",
		},
		[]string{"outcome"}, // completed|failed|cancelled
	)
)

func IncJobRun(job string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	jobRunsTotal.WithLabelValues(norm(job), status).Inc()
}

func IncPollerOutcome(outcome string) {
	pollerOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}
