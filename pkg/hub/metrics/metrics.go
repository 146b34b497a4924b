// Package metrics holds the hub's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks live WebSocket sessions by kind (device/plugin).
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tilepad_sessions_active",
			Help: "Number of live WebSocket sessions by kind",
		},
		[]string{"kind"}, // "device", "plugin"
	)

	// MessagesReceived counts inbound application messages by kind.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilepad_messages_received_total",
			Help: "Total inbound WebSocket messages by session kind",
		},
		[]string{"kind"},
	)

	// MessagesSent counts outbound application messages by kind.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilepad_messages_sent_total",
			Help: "Total outbound WebSocket messages by session kind",
		},
		[]string{"kind"},
	)

	// MessagesDropped counts inbound frames dropped as malformed or unknown.
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilepad_messages_dropped_total",
			Help: "Total inbound messages dropped (malformed JSON, unknown type)",
		},
		[]string{"kind"},
	)

	// EventsDropped counts UI events the emitter failed to deliver.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilepad_events_dropped_total",
			Help: "Total UI events dropped because the emitter failed",
		},
	)

	// TileUpdates counts successful tile mutations by field.
	TileUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilepad_tile_updates_total",
			Help: "Total successful tile mutations by field",
		},
		[]string{"field"}, // "properties", "icon", "label", "icon_options"
	)

	// FolderRefreshes counts folder refresh broadcasts pushed to devices.
	FolderRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilepad_folder_refreshes_total",
			Help: "Total folder refresh broadcasts pushed to device sessions",
		},
	)
)
