package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sync channel and merge engine counters, exported on the metrics port
var (
	SyncConnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_sync_connects_total",
		Help: "Successful websocket connections to the hub",
	})

	SyncReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_sync_reconnects_total",
		Help: "Reconnection attempts after a failed or lost connection",
	})

	SyncMessagesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_sync_messages_merged_total",
		Help: "Inbound order-updated messages fed to the merge engine",
	})

	HubRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_hub_registrations_total",
		Help: "Clients registered on the hub",
	})

	HubBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_hub_broadcasts_total",
		Help: "Order updates broadcast to hub rooms",
	})

	TimelineEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packline_timeline_entries_total",
		Help: "Audit timeline entries derived from reconciliations",
	})
)

// RegisterMetrics registers all collectors on the default registry; call once
// from the composition root before serving the metrics endpoint.
func RegisterMetrics() {
	prometheus.MustRegister(
		SyncConnects,
		SyncReconnects,
		SyncMessagesMerged,
		HubRegistrations,
		HubBroadcasts,
		TimelineEntries,
	)
}
