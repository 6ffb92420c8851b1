package fabric

import (
	"fmt"

	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/fleetmesh/fabric/internal/protocol"
)

// Broker is the stateless WebRTC signaling relay: it forwards opaque
// offer/answer/ICE payloads between the producer and a named consumer
// without inspecting or validating their contents, other than wrapping them
// with the sender's identity. It keeps no negotiation state: pending
// offers and candidate correlation are entirely the clients' concern.
type Broker struct{}

// NewBroker constructs a Broker. It is stateless; a value receiver would do,
// but a constructor keeps call sites consistent with Registry/Room.
func NewBroker() *Broker {
	return &Broker{}
}

// resolveSignal extracts the outbound event type and target id from an
// opaque signaling message and checks the targeting direction against the
// sender's role: offers flow producer->consumer, answers consumer->producer,
// and ICE in either direction toward the named peer.
func resolveSignal(senderRole Role, message map[string]any) (protocol.Event, ParticipantID, error) {
	kind, _ := message["type"].(string)

	targetConsumer, hasConsumerTarget := message["target_consumer"].(string)
	targetProducer, hasProducerTarget := message["target_producer"].(string)

	var event protocol.Event
	switch kind {
	case "offer":
		event = protocol.EventWebRTCOffer
	case "answer":
		event = protocol.EventWebRTCAnswer
	case "ice":
		event = protocol.EventWebRTCICE
	default:
		return "", "", fmt.Errorf("%w: unknown message type %q", ErrInvalidSignal, kind)
	}

	switch {
	case hasConsumerTarget && !hasProducerTarget:
		if senderRole != RoleProducer {
			return "", "", fmt.Errorf("%w: target_consumer requires sender role producer", ErrSignalDirection)
		}
		if kind == "answer" {
			return "", "", fmt.Errorf("%w: answer must target a producer", ErrSignalDirection)
		}
		return event, ParticipantID(targetConsumer), nil

	case hasProducerTarget && !hasConsumerTarget:
		if senderRole != RoleConsumer {
			return "", "", fmt.Errorf("%w: target_producer requires sender role consumer", ErrSignalDirection)
		}
		if kind == "offer" {
			return "", "", fmt.Errorf("%w: offer must target a consumer", ErrSignalDirection)
		}
		return event, ParticipantID(targetProducer), nil

	default:
		return "", "", fmt.Errorf("%w: message must carry exactly one of target_consumer or target_producer", ErrInvalidSignal)
	}
}

// Relay forwards message from "from" to the named peer in room, tagged with
// event (webrtc_offer/webrtc_answer/webrtc_ice). Returns ErrUnknownPeer if the
// target is not currently in the room.
func (b *Broker) Relay(room *Room, from *Session, targetID ParticipantID, event protocol.Event, message map[string]any) error {
	target, _, ok := room.lookup(targetID)
	if !ok {
		metrics.WebRTCSignalAttempts.WithLabelValues("unknown_peer").Inc()
		return ErrUnknownPeer
	}

	frame := protocol.WebRTCSignalFrame{
		Type:      event,
		Timestamp: protocol.Now(),
	}
	payload := stripRoutingFields(message)
	switch event {
	case protocol.EventWebRTCOffer:
		frame.Offer = payload
	case protocol.EventWebRTCAnswer:
		frame.Answer = payload
	case protocol.EventWebRTCICE:
		frame.ICE = payload
	}
	switch from.Role {
	case RoleProducer:
		frame.FromProducer = string(from.ID)
	case RoleConsumer:
		frame.FromConsumer = string(from.ID)
	}

	encoded, err := protocol.Encode(frame)
	if err != nil {
		metrics.WebRTCSignalAttempts.WithLabelValues("encode_error").Inc()
		return err
	}

	target.Send(encoded)
	metrics.WebRTCSignalAttempts.WithLabelValues("relayed").Inc()
	return nil
}

// RelaySignal is the entry point the REST signaling handler calls: it
// validates the sender exists in the room, resolves the target and outbound
// event from the opaque message, checks the targeting direction against the
// sender's role, and relays.
func (b *Broker) RelaySignal(room *Room, senderID ParticipantID, message map[string]any) error {
	sender, role, ok := room.lookup(senderID)
	if !ok {
		metrics.WebRTCSignalAttempts.WithLabelValues("unknown_sender").Inc()
		return ErrUnknownPeer
	}

	event, targetID, err := resolveSignal(role, message)
	if err != nil {
		metrics.WebRTCSignalAttempts.WithLabelValues("invalid_signal").Inc()
		return err
	}

	return b.Relay(room, sender, targetID, event, message)
}

// stripRoutingFields copies message without the fields the broker itself
// consumes; everything else (sdp, candidate, and any client extension) passes
// through untouched.
func stripRoutingFields(message map[string]any) map[string]any {
	payload := make(map[string]any, len(message))
	for k, v := range message {
		switch k {
		case "type", "target_consumer", "target_producer":
			continue
		}
		payload[k] = v
	}
	return payload
}
