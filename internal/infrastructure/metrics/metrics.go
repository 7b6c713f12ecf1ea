// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts persisted chat messages by type.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speak_messages_sent_total",
		Help: "Total number of chat messages persisted",
	}, []string{"type"})

	// PostTransitions counts post lifecycle transitions by target state.
	PostTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speak_post_transitions_total",
		Help: "Total number of post lifecycle transitions",
	}, []string{"transition"})

	// AcceptConflicts counts accepts refused by the single active engagement rule.
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speak_accept_conflicts_total",
		Help: "Total number of accepts refused because the counselor already has an engagement",
	})

	// NotificationsDispatched counts notification deliveries by channel and outcome.
	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speak_notifications_dispatched_total",
		Help: "Total notification deliveries by channel and outcome",
	}, []string{"channel", "outcome"})

	// UploadFailures counts attachment uploads that failed.
	UploadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speak_upload_failures_total",
		Help: "Total number of failed attachment uploads",
	})

	// WebSocketConnections is the gauge of open WebSocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speak_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// ActiveSubscriptions is the gauge of open live chat subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speak_active_subscriptions",
		Help: "Number of live chat subscriptions held by WebSocket sessions",
	})
)

const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)
