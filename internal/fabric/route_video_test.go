package fabric

import (
	"testing"

	"github.com/fleetmesh/fabric/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Session) {
	for s.outbound.len() > 0 {
		s.outbound.pop()
	}
}

func TestRouteVideo_StreamLifecycleBroadcastsToConsumersOnly(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	consumer, _ := newTestSession("c1", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	drain(producer)
	drain(consumer)

	raw, _ := protocol.Encode(protocol.StreamLifecycleFrame{Type: protocol.EventStreamStarted})
	r.handleFrame(producer.ID, protocol.EventStreamStarted, raw)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "stream_started")
	assert.Equal(t, 0, producer.outbound.len())
}

func TestRouteVideo_ConsumerMayNotReportStreamLifecycle(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	consumer, _ := newTestSession("c1", RoleConsumer, r)
	require.NoError(t, r.admit(consumer))

	raw, _ := protocol.Encode(protocol.StreamLifecycleFrame{Type: protocol.EventStreamStarted})
	r.handleFrame(consumer.ID, protocol.EventStreamStarted, raw)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "\"type\":\"error\"")
}

func TestRouteVideo_ConfigUpdateMergesAndBroadcasts(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	consumer, _ := newTestSession("c1", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	drain(consumer)

	raw, _ := protocol.Encode(protocol.VideoConfigUpdateFrame{
		Type:   protocol.EventVideoConfigUpdate,
		Config: protocol.VideoConfig{Resolution: "1280x720", Framerate: 30},
	})
	r.handleFrame(producer.ID, protocol.EventVideoConfigUpdate, raw)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "1280x720")

	raw2, _ := protocol.Encode(protocol.VideoConfigUpdateFrame{
		Type:   protocol.EventVideoConfigUpdate,
		Config: protocol.VideoConfig{BitrateKbps: 2000},
	})
	r.handleFrame(producer.ID, protocol.EventVideoConfigUpdate, raw2)

	info := r.info()
	require.NotNil(t, info.VideoConfig)
	assert.Equal(t, "1280x720", info.VideoConfig.Resolution)
	assert.Equal(t, 2000, info.VideoConfig.BitrateKbps)
}

func TestRouteVideo_RecoveryTriggeredOnlyFromConsumer(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	require.NoError(t, r.admit(producer))
	drain(producer)

	raw, _ := protocol.Encode(protocol.RecoveryTriggeredFrame{Type: protocol.EventRecoveryTriggered})
	r.handleFrame(producer.ID, protocol.EventRecoveryTriggered, raw)

	frame, ok := producer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "\"type\":\"error\"")
}

func TestRouteVideo_RecoveryTriggeredBroadcastsToProducerAndOtherConsumers(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	c1, _ := newTestSession("c1", RoleConsumer, r)
	c2, _ := newTestSession("c2", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(c1))
	require.NoError(t, r.admit(c2))
	drain(producer)
	drain(c1)
	drain(c2)

	raw, _ := protocol.Encode(protocol.RecoveryTriggeredFrame{Type: protocol.EventRecoveryTriggered, Details: "resync"})
	r.handleFrame(c1.ID, protocol.EventRecoveryTriggered, raw)

	pf, ok := producer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(pf), "resync")

	cf, ok := c2.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(cf), "resync")

	assert.Equal(t, 0, c1.outbound.len())
}

func TestRouteVideo_StatusUpdateBroadcastsToRoom(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	consumer, _ := newTestSession("c1", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	drain(consumer)

	raw, _ := protocol.Encode(protocol.ObservabilityFrame{
		Type: protocol.EventStatusUpdate,
		Data: map[string]any{"fps": 29.5},
	})
	r.handleFrame(producer.ID, protocol.EventStatusUpdate, raw)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "status_update")

	state := r.state()
	assert.NotNil(t, state.Telemetry["status_update"])
}

func TestRouteVideo_StreamStatsUpdateFrameTelemetry(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	require.NoError(t, r.admit(producer))

	raw, _ := protocol.Encode(protocol.ObservabilityFrame{
		Type: protocol.EventStreamStats,
		Data: map[string]any{"frame_count": 240.0, "fps": 30.0},
	})
	r.handleFrame(producer.ID, protocol.EventStreamStats, raw)

	state := r.state()
	assert.Equal(t, int64(240), state.FrameCount)
	assert.NotEmpty(t, state.LastFrameAt)
}

func TestRouteVideo_EmergencyStopDoesNotTouchConfig(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	consumer, _ := newTestSession("c1", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	drain(consumer)

	raw, _ := protocol.Encode(protocol.EmergencyStopFrame{Type: protocol.EventEmergencyStop, Reason: "halt"})
	r.handleFrame(producer.ID, protocol.EventEmergencyStop, raw)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "emergency_stop")

	info := r.info()
	require.NotNil(t, info.VideoConfig)
	assert.Equal(t, protocol.VideoConfig{}, *info.VideoConfig)
}
