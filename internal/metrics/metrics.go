// Package metrics exposes Prometheus gauges/counters for the server's
// runtime state (component I, added — §6 /metrics).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Containers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tmuxdeck_containers",
		Help: "Containers known to the registry, by kind and status.",
	}, []string{"kind", "status"})

	TerminalChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tmuxdeck_terminal_channels_active",
		Help: "Currently attached terminal WebSocket channels.",
	})

	BridgeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tmuxdeck_bridge_connections_active",
		Help: "Currently connected bridge agents.",
	})

	BridgeOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tmuxdeck_bridge_ops_total",
		Help: "Bridge RPC operations by op name and result.",
	}, []string{"op", "result"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tmuxdeck_notifications_total",
		Help: "Notifications published by kind and channel.",
	}, []string{"kind", "channel"})

	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tmuxdeck_registry_poll_seconds",
		Help:    "Duration of each registry reconciliation poll.",
		Buckets: prometheus.DefBuckets,
	})
)

// Collectors returns the collector set that internal/server registers on its
// own prometheus.NewRegistry(), kept explicit rather than relying on the global default
// registry so tests can construct a scoped one.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Containers, TerminalChannels, BridgeConnections,
		BridgeOpsTotal, NotificationsTotal, PollDuration,
	}
}
