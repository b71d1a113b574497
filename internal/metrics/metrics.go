package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Room hub metrics
var (
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "room_hub_rooms_active",
			Help: "Number of rooms with at least one live connection",
		},
	)

	RoomProducersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "room_hub_producers_active",
			Help: "Number of rooms with a registered producer",
		},
	)

	RoomConsumersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "room_hub_consumers_connected",
			Help: "Total consumer connections across all rooms",
		},
	)

	RoomMessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_hub_messages_relayed_total",
			Help: "State and event messages relayed to consumers",
		},
		[]string{"type"},
	)

	RoomJoinsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_hub_joins_rejected_total",
			Help: "Join attempts rejected by reason",
		},
		[]string{"reason"},
	)

	RoomSlowConsumersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_hub_slow_consumers_evicted_total",
			Help: "Consumers dropped because their send buffer was full",
		},
	)
)

// Widget hub metrics
var (
	WidgetTokensActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_hub_tokens_active",
			Help: "Number of widget tokens with at least one subscriber",
		},
	)

	WidgetSubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "widget_hub_subscribers_connected",
			Help: "Total widget subscriber connections",
		},
	)

	WidgetRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widget_hub_renders_total",
			Help: "Widget data provider renders by status",
		},
		[]string{"status"},
	)

	WidgetRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "widget_hub_render_duration_seconds",
			Help:    "Widget data provider render duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	WidgetPushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "widget_hub_pushes_total",
			Help: "widget_data messages delivered to subscribers",
		},
	)

	WidgetPushesDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "widget_hub_pushes_deduped_total",
			Help: "Pushes skipped because the payload digest was unchanged",
		},
	)
)

// Change-notification bridge metrics
var (
	BridgeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_change_events_total",
			Help: "Change events accepted by the bridge, by signal kind",
		},
		[]string{"kind"},
	)

	BridgeEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_change_events_dropped_total",
			Help: "Change events dropped because the bridge queue was full",
		},
	)

	BridgeResolveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_resolve_failures_total",
			Help: "Change events that could not be resolved to a widget token",
		},
	)
)

// Connection / transport metrics
var (
	WSConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "WebSocket connections accepted by endpoint",
		},
		[]string{"endpoint"},
	)

	WSConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Open WebSocket connections by endpoint",
		},
		[]string{"endpoint"},
	)

	WSConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket connections rejected by limit reason",
		},
		[]string{"reason"},
	)

	ConnSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "connection_send_duration_seconds",
			Help:    "Time spent writing a single message to a connection",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	ConnSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_send_failures_total",
			Help: "Failed writes to client connections",
		},
	)

	ConnPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_ping_failures_total",
			Help: "Failed keep-alive pings to client connections",
		},
	)
)

// Redis metrics
var (
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Redis commands executed by operation and status",
		},
		[]string{"operation", "status"},
	)

	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis command duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Failed attempts to establish a Redis connection",
		},
	)
)

// Circuit breaker metrics (widget data provider)
var (
	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)
