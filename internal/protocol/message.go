// Package protocol implements the wire codec shared by the robotics and
// video WebSocket surfaces: a single JSON object per frame, discriminated by
// a "type" tag. Frames decode in two steps: envelope first for the tag,
// then the raw bytes into the concrete payload type for that event.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is a participant's role within a room.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Event is the wire-level type discriminator carried by every frame.
type Event string

const (
	// Robotics events.
	EventJointUpdate   Event = "joint_update"
	EventStateSync     Event = "state_sync"
	EventHeartbeat     Event = "heartbeat"
	EventHeartbeatAck  Event = "heartbeat_ack"
	EventEmergencyStop Event = "emergency_stop"
	EventJoined        Event = "joined"
	EventError         Event = "error"

	// Video events (in addition to the robotics set above).
	EventStreamStarted     Event = "stream_started"
	EventStreamStopped     Event = "stream_stopped"
	EventVideoConfigUpdate Event = "video_config_update"
	EventRecoveryTriggered Event = "recovery_triggered"
	EventParticipantJoined Event = "participant_joined"
	EventParticipantLeft   Event = "participant_left"
	EventWebRTCOffer       Event = "webrtc_offer"
	EventWebRTCAnswer      Event = "webrtc_answer"
	EventWebRTCICE         Event = "webrtc_ice"
	EventStatusUpdate      Event = "status_update"
	EventStreamStats       Event = "stream_stats"
)

// Envelope is the minimal shape every frame must satisfy: a type tag. Decode
// into Envelope first to discriminate, then re-decode the raw bytes into the
// concrete payload type for that event.
type Envelope struct {
	Type Event `json:"type"`
}

// DecodeEnvelope extracts the type tag from a raw frame without committing to
// a concrete payload shape. An unknown or missing type is a protocol violation,
// reported by the caller.
func DecodeEnvelope(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("frame missing required \"type\" field")
	}
	return env.Type, nil
}

// JoinRequest is the required first frame on every session.
type JoinRequest struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
}

// JointEntry is a single joint name/value pair. Value is unclamped; the
// fabric does not validate ranges.
type JointEntry struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Speed *float64 `json:"speed,omitempty"`
}

// JointUpdateFrame carries a list of joint updates, inbound or outbound.
type JointUpdateFrame struct {
	Type      Event        `json:"type"`
	Data      []JointEntry `json:"data"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// StateSyncFrame carries a full or partial joint map for catch-up/resync.
type StateSyncFrame struct {
	Type      Event              `json:"type"`
	Joints    map[string]float64 `json:"joints"`
	Timestamp string             `json:"timestamp,omitempty"`
}

// EmergencyStopFrame is a priority, state-free safety broadcast.
type EmergencyStopFrame struct {
	Type      Event  `json:"type"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HeartbeatFrame is exchanged to keep a session alive.
type HeartbeatFrame struct {
	Type      Event  `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// JoinedFrame acknowledges a successful join.
type JoinedFrame struct {
	Type      Event  `json:"type"`
	RoomID    string `json:"room_id"`
	Role      Role   `json:"role"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ErrorFrame reports a protocol violation, conflict, or internal error to a peer.
type ErrorFrame struct {
	Type      Event  `json:"type"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ParticipantEventFrame announces a roster change in video rooms.
type ParticipantEventFrame struct {
	Type          Event  `json:"type"`
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// VideoConfig describes the stream parameters for a video room.
type VideoConfig struct {
	Resolution  string `json:"resolution,omitempty"`
	Framerate   int    `json:"framerate,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
}

// RecoveryConfig is pass-through metadata; the fabric never inspects it.
type RecoveryConfig struct {
	Policy string         `json:"policy,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// VideoConfigUpdateFrame merges into and then echoes the room's video config.
type VideoConfigUpdateFrame struct {
	Type      Event       `json:"type"`
	Config    VideoConfig `json:"config"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// StreamLifecycleFrame covers stream_started/stream_stopped.
type StreamLifecycleFrame struct {
	Type      Event  `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RecoveryTriggeredFrame is a consumer's self-report of a recovery action.
type RecoveryTriggeredFrame struct {
	Type          Event  `json:"type"`
	ParticipantID string `json:"participant_id"`
	Details       string `json:"details,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// ObservabilityFrame covers status_update/stream_stats, forwarded verbatim.
type ObservabilityFrame struct {
	Type      Event          `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// WebRTCSignalFrame is the outbound shape for webrtc_offer/webrtc_answer/webrtc_ice,
// wrapping the opaque client payload with the sender identity. Exactly
// one of Offer/Answer/ICE is populated, matching the frame's type tag; the
// payload is the client's message stripped of its routing fields
// (type/target_consumer/target_producer), which the wrapper has already consumed.
type WebRTCSignalFrame struct {
	Type         Event          `json:"type"`
	FromProducer string         `json:"from_producer,omitempty"`
	FromConsumer string         `json:"from_consumer,omitempty"`
	Offer        map[string]any `json:"offer,omitempty"`
	Answer       map[string]any `json:"answer,omitempty"`
	ICE          map[string]any `json:"ice,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// SignalRequest is the REST body for POST .../webrtc/signal.
type SignalRequest struct {
	ClientID string         `json:"client_id"`
	Message  map[string]any `json:"message"`
}

// Encode marshals any outbound frame to its wire bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Now returns the wall-clock timestamp the server stamps onto frames it
// originates. Clients' timestamps are preserved when relaying; the server
// assigns its own only to messages it authors.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
