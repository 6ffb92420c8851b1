// Package metrics declares the fabric's Prometheus instrumentation.
//
// Naming convention: namespace_subsystem_name.
//   - namespace: fabric (application-level grouping)
//   - subsystem: websocket, room, webrtc, ratelimit, http (feature-level grouping)
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fabric",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	ActiveRooms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabric",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	}, []string{"protocol"})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fabric",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "outcome"})

	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fabric",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing a single inbound message",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	BackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "room",
		Name:      "backpressure_drops_total",
		Help:      "Total outbound messages dropped due to a full session queue",
	}, []string{"room_id"})

	WebRTCSignalAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "webrtc",
		Name:      "signal_total",
		Help:      "Total WebRTC signaling relay attempts",
	}, []string{"outcome"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"endpoint"})

	CorrelationIDs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fabric",
		Subsystem: "http",
		Name:      "correlation_ids_total",
		Help:      "Total requests by whether the correlation id was client-supplied or server-generated",
	}, []string{"source"})
)

func IncConnection() { ActiveConnections.Inc() }
func DecConnection() { ActiveConnections.Dec() }
