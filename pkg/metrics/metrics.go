// Package metrics exposes Prometheus collectors for the log pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Consumer loop metrics, labelled by consumer name.
var (
	RecordsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_consumer_records_consumed_total",
			Help: "Total number of log records fetched by a consumer loop",
		},
		[]string{"consumer"},
	)

	RecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_consumer_records_skipped_total",
			Help: "Total number of records skipped after a non-fatal handler fault",
		},
		[]string{"consumer"},
	)

	OffsetCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_consumer_offset_commits_total",
			Help: "Total number of synchronous offset commits",
		},
		[]string{"consumer"},
	)

	ConsumerFatal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_consumer_fatal_total",
			Help: "Total number of fatal faults that stopped a consumer loop",
		},
		[]string{"consumer"},
	)
)

// Candle aggregation metrics.
var (
	CandlesUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinharbor_candles_upserted_total",
			Help: "Total number of candle rows written",
		},
	)

	TradesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinharbor_candle_trades_discarded_total",
			Help: "Total number of redelivered trades discarded by the continuity check",
		},
	)
)

// Wallet settlement metrics.
var (
	DepositsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinharbor_wallet_deposits_completed_total",
			Help: "Total number of deposits credited to the ledger",
		},
	)

	WithdrawalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_wallet_withdrawal_transitions_total",
			Help: "Total number of withdrawal state transitions",
		},
		[]string{"to"},
	)

	CommandsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinharbor_commands_published_total",
			Help: "Total number of matching-engine commands published",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(RecordsConsumed, RecordsSkipped, OffsetCommits, ConsumerFatal)
	prometheus.MustRegister(CandlesUpserted, TradesDiscarded)
	prometheus.MustRegister(DepositsCompleted, WithdrawalTransitions, CommandsPublished)
}
