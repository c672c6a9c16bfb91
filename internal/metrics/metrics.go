package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerOperationDuration tracks the latency of gift card ledger operations
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gift_card_ledger_operation_duration_seconds",
			Help: "Duration of gift card ledger operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"},
	)

	// GatewayResponses counts payment adapter responses
	GatewayResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_card_gateway_responses_total",
			Help: "Gift card payment adapter responses by action and outcome",
		},
		[]string{"action", "outcome"}, // success or declined
	)

	// GatewayLogsDropped counts gateway logs that could not be persisted
	GatewayLogsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gift_card_gateway_logs_dropped_total",
			Help: "Gateway call logs that failed to persist",
		},
	)
)

// RecordLedgerOperation records the duration of a ledger operation
func RecordLedgerOperation(operation, status string, duration float64) {
	LedgerOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordGatewayResponse counts one adapter response
func RecordGatewayResponse(action string, success bool) {
	outcome := "declined"
	if success {
		outcome = "success"
	}
	GatewayResponses.WithLabelValues(action, outcome).Inc()
}

// RecordGatewayLogsDropped counts logs lost after a failed batch write
func RecordGatewayLogsDropped(n int) {
	GatewayLogsDropped.Add(float64(n))
}
