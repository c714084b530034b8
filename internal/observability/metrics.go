package observability

import "github.com/prometheus/client_golang/prometheus"

// Chat metrics. Label sets are fixed enums to keep cardinality bounded.
var (
	// WSConnections gauges currently open live connections.
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Current number of open WebSocket connections.",
		},
	)

	// RoomPushes counts events delivered to room subscribers, by event type.
	RoomPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_room_pushes_total",
			Help: "Total number of events pushed to room subscribers.",
		},
		[]string{"event"},
	)

	// MessagesSent counts persisted messages by the transport they came in on
	// ("http" or "ws").
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages persisted.",
		},
		[]string{"transport"},
	)

	// NotificationsCreated counts notifications produced by fan-out, by kind.
	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_created_total",
			Help: "Total number of notifications produced by fan-out.",
		},
		[]string{"kind"},
	)

	// FanoutFailures counts fan-outs that gave up after all retries.
	FanoutFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_fanout_failures_total",
			Help: "Total number of notification fan-outs that failed after retries.",
		},
	)
)

func init() {
	prometheus.MustRegister(WSConnections, RoomPushes, MessagesSent, NotificationsCreated, FanoutFailures)
}
