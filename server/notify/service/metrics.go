package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workhub_notify_dispatch_total",
			Help: "Dispatch calls by notification type and outcome",
		},
		[]string{"type", "status"},
	)

	pushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workhub_notify_push_total",
			Help: "Realtime push attempts by result",
		},
		[]string{"result"},
	)

	handshakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workhub_notify_ws_handshake_total",
			Help: "Realtime handshakes by result",
		},
		[]string{"result"},
	)

	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workhub_auth_refresh_total",
			Help: "Access token refreshes by mode and result",
		},
		[]string{"mode", "result"},
	)

	liveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workhub_notify_live_connections",
			Help: "Connections currently held in the registry",
		},
	)
)
