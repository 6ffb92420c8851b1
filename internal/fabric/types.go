// Package fabric implements the core of the real-time transport fabric:
// participant sessions, per-room state machines and fan-out routing, the
// WebRTC signaling broker, and the workspace/room registry. It covers two
// domains: robotics rooms (single producer, many consumers, authoritative
// joint state) and video rooms (single producer, many consumers, WebRTC
// signaling and stream telemetry).
package fabric

import "github.com/fleetmesh/fabric/internal/protocol"

// WorkspaceID identifies a tenant-like grouping of rooms.
type WorkspaceID string

// RoomID identifies a room within a workspace.
type RoomID string

// ParticipantID identifies a session within a room.
type ParticipantID string

// Protocol distinguishes the two domains a room can belong to.
type Protocol string

const (
	ProtocolRobotics Protocol = "robotics"
	ProtocolVideo    Protocol = "video"
)

// Role re-exports protocol.Role for convenience within this package.
type Role = protocol.Role

const (
	RoleProducer = protocol.RoleProducer
	RoleConsumer = protocol.RoleConsumer
)

// RoomInfo is the externally visible shallow summary of a room, as returned
// by the room listing and lookup endpoints.
type RoomInfo struct {
	WorkspaceID    WorkspaceID              `json:"workspace_id"`
	RoomID         RoomID                   `json:"room_id"`
	Protocol       Protocol                 `json:"protocol"`
	CreatedAt      string                   `json:"created_at"`
	HasProducer    bool                     `json:"has_producer"`
	ConsumerCount  int                      `json:"consumer_count"`
	VideoConfig    *protocol.VideoConfig    `json:"video_config,omitempty"`
	RecoveryConfig *protocol.RecoveryConfig `json:"recovery_config,omitempty"`
}

// RoomState is the authoritative deep snapshot of a room: joints plus
// participant summary for robotics rooms, config plus participant summary
// and telemetry for video rooms.
type RoomState struct {
	RoomInfo
	Joints       map[string]float64 `json:"joints,omitempty"`
	LastUpdateAt string             `json:"last_update_at,omitempty"`
	Telemetry    map[string]any     `json:"telemetry,omitempty"`
	FrameCount   int64              `json:"frame_count,omitempty"`
	LastFrameAt  string             `json:"last_frame_at,omitempty"`
}
