package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the escrow module.
// Tracks lifecycle transitions and settlement latency.
type Metrics struct {
	EscrowsCreated     *prometheus.CounterVec
	DepositsRecorded   prometheus.Counter
	DepositsDuplicate  prometheus.Counter
	EscrowsCompleted   *prometheus.CounterVec
	ConflictRetries    prometheus.Counter
	SweepOutcomes      *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
}

// New creates a new Metrics instance with all escrow module metrics registered.
func New() *Metrics {
	return &Metrics{
		EscrowsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_escrows_created_total",
			Help: "Total number of escrows created, by kind",
		}, []string{"kind"}),
		DepositsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paylink_deposits_recorded_total",
			Help: "Total number of deposit observations applied",
		}),
		DepositsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paylink_deposits_duplicate_total",
			Help: "Total number of deposit observations dropped as duplicates",
		}),
		EscrowsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_escrows_completed_total",
			Help: "Total number of escrows reaching a terminal state, by status",
		}, []string{"status"}),
		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paylink_write_conflicts_total",
			Help: "Total number of conditional writes lost to a concurrent writer",
		}),
		SweepOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_sweep_outcomes_total",
			Help: "Total number of expired escrows swept, by outcome",
		}, []string{"outcome"}),
		SettlementDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paylink_settlement_duration_seconds",
			Help:    "Duration of settlement executions (fund movement path)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// IncrementCreated records a successful escrow creation.
func (m *Metrics) IncrementCreated(kind string) {
	m.EscrowsCreated.WithLabelValues(kind).Inc()
}

// IncrementCompleted records an escrow reaching a terminal status.
func (m *Metrics) IncrementCompleted(status string) {
	m.EscrowsCompleted.WithLabelValues(status).Inc()
}

// ObserveSettlement records the duration of a settlement execution.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSettlement(start time.Time) {
	m.SettlementDuration.Observe(time.Since(start).Seconds())
}
