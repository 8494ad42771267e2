package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "reservations_created_total",
			Help:      "Bookings admitted into the interval index.",
		},
	)

	conflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "reservation_conflicts_total",
			Help:      "Candidate reservations rejected due to overlap.",
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "transitions_total",
			Help:      "Booking lifecycle transitions by event.",
		},
		[]string{"event"},
	)

	ledgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "ledger_transactions_total",
			Help:      "Applied ledger transactions by kind.",
		},
		[]string{"kind"},
	)

	budgetAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "labovik",
			Name:      "budget_alerts_active",
			Help:      "Active alerts per budget account.",
		},
		[]string{"account"},
	)

	sweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labovik",
			Name:      "noshow_sweep_runs_total",
			Help:      "Completed no-show sweep passes.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			conflictsDetected,
			transitions,
			ledgerTransactions,
			budgetAlerts,
			sweepRuns,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncConflictDetected() {
	conflictsDetected.Inc()
}

func IncTransition(event string) {
	transitions.WithLabelValues(event).Inc()
}

func IncLedgerTransaction(kind string) {
	ledgerTransactions.WithLabelValues(kind).Inc()
}

func SetBudgetAlerts(account string, n int) {
	budgetAlerts.WithLabelValues(account).Set(float64(n))
}

func IncSweepRun() {
	sweepRuns.Inc()
}
