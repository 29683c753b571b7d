// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	GamesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_games_started_total",
			Help: "Games opened, by game type",
		},
		[]string{"type"},
	)

	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_games_finished_total",
			Help: "Games that reached a terminal state, by game type and outcome",
		},
		[]string{"type", "outcome"},
	)

	LedgerAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_ledger_adjustments_total",
			Help: "Committed balance adjustments, by kind",
		},
		[]string{"kind"},
	)

	LedgerRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casino_ledger_insufficient_funds_total",
			Help: "Adjustments rejected for insufficient funds",
		},
	)

	AccountsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casino_accounts_created_total",
			Help: "Accounts created on first contact",
		},
	)

	RollOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_roll_requests_total",
			Help: "Roll request poll results, by outcome",
		},
		[]string{"outcome"},
	)

	ReaperRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casino_reaper_removed_total",
			Help: "Stale entities removed by the reaper",
		},
		[]string{"entity"},
	)

	ReaperRefunds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casino_reaper_refunds_total",
			Help: "Refunds issued by the reaper",
		},
	)
)

// Init registers every collector with the default registry.
func Init() {
	prometheus.MustRegister(GamesStarted)
	prometheus.MustRegister(GamesFinished)
	prometheus.MustRegister(LedgerAdjustments)
	prometheus.MustRegister(LedgerRejections)
	prometheus.MustRegister(AccountsCreated)
	prometheus.MustRegister(RollOutcomes)
	prometheus.MustRegister(ReaperRemoved)
	prometheus.MustRegister(ReaperRefunds)
}
