package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Change listener metrics
var (
	// NotificationsReceived tracks raw notifications by source channel.
	NotificationsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_notifications_received_total",
			Help: "Raw change notifications received by channel",
		},
		[]string{"channel"},
	)

	// EventsDropped tracks events discarded before fan-out by reason.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_events_dropped_total",
			Help: "Events dropped before fan-out by reason",
		},
		[]string{"reason"},
	)

	// EnrichDuration tracks the order detail fetch latency in seconds.
	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "listener_enrich_duration_seconds",
			Help:    "Order enrichment fetch duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// ListenerRestarts counts supervised restarts after subscription loss.
	ListenerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listener_restarts_total",
			Help: "Supervised restarts of the change listener",
		},
	)
)

// Broadcast hub metrics
var (
	// HubConnectedClients tracks currently connected client sessions.
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Currently connected client sessions",
		},
	)

	// HubActiveTenants tracks tenants with at least one session.
	HubActiveTenants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_tenants",
			Help: "Tenants with at least one connected session",
		},
	)

	// EventsPublished tracks events fanned out by type.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Events fanned out to sessions by event type",
		},
		[]string{"type"},
	)

	// SlowClientsEvicted counts sessions dropped for stalling delivery.
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Sessions evicted because their send buffer stayed full",
		},
	)

	// WebSocketPingFailures counts failed keepalive pings.
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Failed WebSocket keepalive pings",
		},
	)
)

// Event mirror metrics
var (
	// MirrorAppendFailures counts failed best-effort appends to the mirror.
	MirrorAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_append_failures_total",
			Help: "Failed event appends to the downstream mirror",
		},
	)

	// MirrorEventsDropped counts event copies discarded because the mirror
	// backlog was full.
	MirrorEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_events_dropped_total",
			Help: "Event copies dropped because the mirror backlog was full",
		},
	)
)
