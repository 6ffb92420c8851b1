package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_RelayDeliversOnlyToTarget(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	consumerA, _ := newTestSession("cA", RoleConsumer, r)
	consumerB, _ := newTestSession("cB", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumerA))
	require.NoError(t, r.admit(consumerB))

	// drain the participant_joined frames so they don't confuse assertions.
	for consumerA.outbound.len() > 0 {
		consumerA.outbound.pop()
	}
	for consumerB.outbound.len() > 0 {
		consumerB.outbound.pop()
	}

	broker := NewBroker()
	err := broker.Relay(r, producer, consumerA.ID, "webrtc_offer", map[string]any{"sdp": "offer-body"})
	require.NoError(t, err)

	frameA, ok := consumerA.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frameA), "offer-body")

	assert.Equal(t, 0, consumerB.outbound.len())
}

func TestBroker_RelaySignalProducerOfferToConsumer(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("VP", RoleProducer, r)
	consumer, _ := newTestSession("VC", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	for consumer.outbound.len() > 0 {
		consumer.outbound.pop()
	}

	broker := NewBroker()
	err := broker.RelaySignal(r, producer.ID, map[string]any{
		"type":            "offer",
		"target_consumer": string(consumer.ID),
		"sdp":             "v=0...",
	})
	require.NoError(t, err)

	frame, ok := consumer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "\"type\":\"webrtc_offer\"")
	assert.Contains(t, string(frame), "\"from_producer\":\"VP\"")
	assert.Contains(t, string(frame), "\"offer\":{")
	assert.Contains(t, string(frame), "v=0...")
	// Routing fields are consumed by the wrapper, not forwarded.
	assert.NotContains(t, string(frame), "target_consumer")
}

func TestBroker_RelaySignalConsumerAnswerToProducer(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("VP", RoleProducer, r)
	consumer, _ := newTestSession("VC", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))
	for producer.outbound.len() > 0 {
		producer.outbound.pop()
	}

	broker := NewBroker()
	err := broker.RelaySignal(r, consumer.ID, map[string]any{
		"type":            "answer",
		"target_producer": string(producer.ID),
		"sdp":             "v=0...",
	})
	require.NoError(t, err)

	frame, ok := producer.outbound.pop()
	require.True(t, ok)
	assert.Contains(t, string(frame), "\"type\":\"webrtc_answer\"")
	assert.Contains(t, string(frame), "\"from_consumer\":\"VC\"")
	assert.Contains(t, string(frame), "\"answer\":{")
}

func TestBroker_RelaySignalRejectsWrongDirection(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("VP", RoleProducer, r)
	consumer, _ := newTestSession("VC", RoleConsumer, r)
	require.NoError(t, r.admit(producer))
	require.NoError(t, r.admit(consumer))

	broker := NewBroker()
	// A consumer may not address target_consumer (only producers may).
	err := broker.RelaySignal(r, consumer.ID, map[string]any{
		"type":            "offer",
		"target_consumer": string(producer.ID),
	})
	assert.ErrorIs(t, err, ErrSignalDirection)
}

func TestBroker_RelaySignalUnknownSender(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	broker := NewBroker()
	err := broker.RelaySignal(r, "ghost", map[string]any{"type": "offer", "target_consumer": "x"})
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestBroker_RelayUnknownPeer(t *testing.T) {
	r := NewRoom("ws1", "room1", ProtocolVideo)
	producer, _ := newTestSession("p1", RoleProducer, r)
	require.NoError(t, r.admit(producer))

	broker := NewBroker()
	err := broker.Relay(r, producer, "ghost", "webrtc_offer", map[string]any{"sdp": "x"})
	assert.ErrorIs(t, err, ErrUnknownPeer)
}
