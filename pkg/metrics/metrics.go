// Package metrics exposes the service's Prometheus collectors. All
// collectors are registered on the default registry and served by the
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAppended counts durably committed messages.
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradetalk",
		Name:      "messages_appended_total",
		Help:      "Messages durably appended to the store.",
	})

	// EventsPublished counts realtime events fanned out, by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradetalk",
		Name:      "realtime_events_published_total",
		Help:      "Realtime events fanned out to connected clients.",
	}, []string{"type"})

	// EventsDropped counts events lost to full client send buffers.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradetalk",
		Name:      "realtime_events_dropped_total",
		Help:      "Realtime events dropped because a client buffer was full.",
	})

	// WSConnections tracks currently registered websocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradetalk",
		Name:      "ws_connections",
		Help:      "Currently registered websocket connections.",
	})

	// MessagesRead counts read-flag transitions.
	MessagesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradetalk",
		Name:      "messages_read_total",
		Help:      "Messages transitioned from unread to read.",
	})
)
