package internal

import "github.com/prometheus/client_golang/prometheus"

var (
	gatewayEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bramble_gateway_events_total",
			Help: "Dispatch events received from the gateway by type",
		},
		[]string{"type"},
	)

	reconnectCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bramble_gateway_reconnects_total",
			Help: "Count of gateway reconnections",
		},
	)

	gatewayLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bramble_gateway_latency_seconds",
			Help: "Time between the last heartbeat and its acknowledgement",
		},
	)

	shardStatusGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bramble_shard_status",
			Help: "Current lifecycle status of the gateway connection",
		},
	)

	commandInvocationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bramble_command_invocations_total",
			Help: "Command invocations by command name",
		},
		[]string{"command"},
	)

	commandErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bramble_command_errors_total",
			Help: "Command handler errors and panics by command name",
		},
		[]string{"command"},
	)
)
