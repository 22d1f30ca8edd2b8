// Package metrics exposes the client's Prometheus instrumentation:
//
//   - hyperflow_orders_total{status}        – order actions submitted
//   - hyperflow_cancel_batches_total{status} – cancel batches issued
//   - hyperflow_nonces_issued_total          – nonces handed out
//   - hyperflow_reconnects_total             – socket reconnect attempts
//   - hyperflow_dms_fires_total              – dead-man's-switch firings
//   - hyperflow_session_phase                – current session phase (enum value)
//
// Registered in init() and served by the status server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperflow_orders_total",
			Help: "Order actions submitted to the exchange",
		},
		[]string{"status"},
	)

	CancelBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperflow_cancel_batches_total",
			Help: "Cancel batches issued by the batch canceller",
		},
		[]string{"status"},
	)

	NoncesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperflow_nonces_issued_total",
			Help: "Nonces issued for signed requests",
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperflow_reconnects_total",
			Help: "Socket reconnect attempts",
		},
	)

	DMSFiresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperflow_dms_fires_total",
			Help: "Dead-man's-switch firings",
		},
	)

	SessionPhase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hyperflow_session_phase",
			Help: "Current session phase (0=disconnected 1=connecting 2=subscribing 3=live 4=reconnecting 5=closed)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		CancelBatchesTotal,
		NoncesIssuedTotal,
		ReconnectsTotal,
		DMSFiresTotal,
		SessionPhase,
	)
}
