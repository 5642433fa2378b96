package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdfund_transactions_total",
		Help: "Transactions handled by the runtime, by outcome",
	}, []string{"result"})

	instructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdfund_instructions_total",
		Help: "Top-level instructions executed, by program and outcome",
	}, []string{"program", "result"})

	transactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crowdfund_transaction_duration_seconds",
		Help:    "Time spent executing and committing a transaction",
		Buckets: prometheus.DefBuckets,
	})

	computeUnitsUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crowdfund_compute_units",
		Help:    "Compute units consumed per executed transaction",
		Buckets: prometheus.ExponentialBuckets(100, 2, 12),
	})
)

// Transaction outcomes.
const (
	resultSuccess  = "success"
	resultFailed   = "failed"
	resultRejected = "rejected"
)

// ObserveTransaction records the outcome of an executed transaction.
func ObserveTransaction(result string, computeUnits uint64, d time.Duration) {
	transactionsTotal.WithLabelValues(result).Inc()
	computeUnitsUsed.Observe(float64(computeUnits))
	transactionDuration.Observe(d.Seconds())
}

// ObserveRejected records a transaction refused before execution.
func ObserveRejected() {
	transactionsTotal.WithLabelValues(resultRejected).Inc()
}

// ObserveInstruction records the outcome of a top-level instruction.
func ObserveInstruction(program, result string) {
	instructionsTotal.WithLabelValues(program, result).Inc()
}
