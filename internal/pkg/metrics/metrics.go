// Package metrics declares the Prometheus collectors shared by the API and
// the settlement services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_ledger_entries_total",
		Help: "Ledger entries appended, by currency and kind",
	}, []string{"currency", "kind"})

	GiftsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_gifts_total",
		Help: "Gift settlements, by outcome",
	}, []string{"outcome"})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_payment_reconciliations_total",
		Help: "Payment status reconciliations, by source and action",
	}, []string{"source", "action"})

	PollOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_payment_poll_outcomes_total",
		Help: "Payment watcher results, by outcome",
	}, []string{"outcome"})

	WithdrawalsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_withdrawals_settled_total",
		Help: "Withdrawals debited, by currency and whether the debit was clamped",
	}, []string{"currency", "clamped"})

	PKGiftsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_pk_gifts_total",
		Help: "Gift events applied to PK battles",
	})
)
