// Package metrics exposes the Prometheus collectors the engines
// increment as they run, grounded in the teacher's use of
// prometheus/client_golang for service instrumentation. Collectors are
// package-level so every engine package can import metrics without
// threading a registry through constructors; cmd/engined serves the
// default registry at /metrics via promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerOpsTotal counts every credit/debit/hold/release/finalize by
	// direction and category (internal/ledger).
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "ledger",
		Name:      "ops_total",
		Help:      "Wallet ledger operations by direction and category.",
	}, []string{"direction", "category"})

	// PairsMatchedTotal counts binary pairs flipped red->green by
	// package code (internal/binaryengine).
	PairsMatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "binary",
		Name:      "pairs_matched_total",
		Help:      "Binary pairs matched per session, by package code.",
	}, []string{"package_code"})

	// SessionDuration observes how long each scheduled session run took.
	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mlm",
		Subsystem: "scheduler",
		Name:      "session_duration_seconds",
		Help:      "Wall-clock duration of a binary engine session run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"session_index"})

	// RankAdvancesTotal counts one-shot rank income credits.
	RankAdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "rank",
		Name:      "advances_total",
		Help:      "Rank-step advances credited, by package code.",
	}, []string{"package_code"})

	// RoyaltyPaidTotal sums royalty payouts credited, in ledger
	// sub-units, cumulatively.
	RoyaltyPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "royalty",
		Name:      "paid_total",
		Help:      "Royalty payout amount distributed, cumulative.",
	}, []string{"phase"})

	// FundPoolBalance gauges the current car/house/travel pool balances.
	FundPoolBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mlm",
		Subsystem: "fund",
		Name:      "pool_balance",
		Help:      "Current balance of a fund pool bucket.",
	}, []string{"pool"})

	// EPINOpsTotal counts generate/transfer/reserve/consume operations.
	EPINOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "epin",
		Name:      "ops_total",
		Help:      "EPIN lifecycle operations.",
	}, []string{"op"})

	// FranchiseSalesTotal counts processed franchise sales.
	FranchiseSalesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlm",
		Subsystem: "franchise",
		Name:      "sales_total",
		Help:      "Franchise sales processed.",
	}, []string{"product_id"})
)

// Registry returns the default Prometheus gatherer that the promauto
// collectors above register with.
func Registry() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}
