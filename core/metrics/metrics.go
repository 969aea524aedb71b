// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cmdbot_messages_received_total",
			Help: "Total number of inbound messages seen by the dispatcher",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cmdbot_rate_limited_total",
			Help: "Total number of messages rejected by the per-sender rate limiter",
		},
	)

	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbot_commands_handled_total",
			Help: "Total number of commands dispatched, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbot_command_duration_seconds",
			Help:    "Duration of command handler execution",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"command"},
	)

	RemindersScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbot_reminders_scheduled_total",
			Help: "Total number of reminders created, by delivery mode",
		},
		[]string{"mode"},
	)

	// RemindersDispatched counts hand-offs to the sender, not confirmed deliveries.
	RemindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbot_reminders_dispatched_total",
			Help: "Total number of reminders handed to the outbound sender, by status",
		},
		[]string{"status"},
	)

	RemindersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdbot_reminders_active",
			Help: "Number of reminders waiting to fire",
		},
	)

	WalletOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbot_wallet_operations_total",
			Help: "Total number of wallet operations, by operation and status",
		},
		[]string{"operation", "status"},
	)

	PendingTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdbot_pending_transactions",
			Help: "Number of fund loads awaiting OTP verification",
		},
	)

	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbot_gateway_request_duration_seconds",
			Help:    "Duration of outbound HTTP calls to external APIs",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 15},
		},
		[]string{"endpoint", "status"},
	)

	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbot_outbound_messages_total",
			Help: "Total number of messages sent to the messaging client, by status",
		},
		[]string{"status"},
	)
)

// Status maps an error to the "ok"/"fail" label used across collectors.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
