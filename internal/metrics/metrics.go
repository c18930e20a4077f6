// Package metrics exposes the bot's Prometheus collectors and a small HTTP
// server for scraping and health checks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names
const (
	LabelCommand = "command"
	LabelKind    = "kind"
	LabelResult  = "result"
	LabelSource  = "source"
	LabelJob     = "job"
)

// Result label values
const (
	ResultWin   = "win"
	ResultLoss  = "loss"
	ResultError = "error"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of handled commands and component interactions",
		},
		[]string{LabelCommand},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_command_duration_seconds",
			Help:    "Time spent handling an interaction",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{LabelCommand},
	)

	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_command_errors_total",
			Help: "Interactions that failed with an unexpected error",
		},
		[]string{LabelCommand},
	)

	WagersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_wagers_total",
			Help: "Total number of resolved wagers by kind and result",
		},
		[]string{LabelKind, LabelResult},
	)

	TaxCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_tax_collected_total",
			Help: "Points credited to the tax pool by source",
		},
		[]string{LabelSource},
	)

	SweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_sweep_errors_total",
			Help: "Total number of failed scheduled job runs and sweep items",
		},
		[]string{LabelJob},
	)
)

// Command counts one handled interaction.
func Command(name string) {
	CommandsTotal.WithLabelValues(name).Inc()
}

// ObserveCommand records how long an interaction took and whether it failed.
func ObserveCommand(name string, d time.Duration, failed bool) {
	CommandDuration.WithLabelValues(name).Observe(d.Seconds())
	if failed {
		CommandErrors.WithLabelValues(name).Inc()
	}
}

// Wager counts one resolved wager.
func Wager(kind string, won bool) {
	result := ResultLoss
	if won {
		result = ResultWin
	}
	WagersTotal.WithLabelValues(kind, result).Inc()
}

// Tax records points sent to the tax pool.
func Tax(source string, amount int64) {
	if amount > 0 {
		TaxCollected.WithLabelValues(source).Add(float64(amount))
	}
}
