package fabric

import (
	"sync"

	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/fleetmesh/fabric/internal/protocol"
	"github.com/google/uuid"
)

// Registry is a two-level workspace -> room map owning all rooms for one
// protocol (robotics or video). It is the gate every REST and WebSocket
// entry point passes through. A room is never deleted except via an explicit
// DeleteRoom call; rooms with no participants persist so a producer can
// drop and reconnect without tearing the room down.
type Registry struct {
	protocol Protocol
	mu       sync.RWMutex
	rooms    map[WorkspaceID]map[RoomID]*Room
}

// NewRegistry builds an empty registry for the given protocol.
func NewRegistry(proto Protocol) *Registry {
	return &Registry{
		protocol: proto,
		rooms:    make(map[WorkspaceID]map[RoomID]*Room),
	}
}

// CreateRoom generates a UUID v4 room id if omitted, implicitly creates the
// workspace if absent, and fails with ErrRoomExists if the
// (workspace_id, room_id) pair is already registered.
func (reg *Registry) CreateRoom(workspaceID WorkspaceID, roomID RoomID, videoConfig *protocol.VideoConfig, recoveryConfig *protocol.RecoveryConfig) (WorkspaceID, RoomID, error) {
	if roomID == "" {
		roomID = RoomID(uuid.NewString())
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	ws, ok := reg.rooms[workspaceID]
	if !ok {
		ws = make(map[RoomID]*Room)
		reg.rooms[workspaceID] = ws
	}
	if _, exists := ws[roomID]; exists {
		return "", "", ErrRoomExists
	}

	room := NewRoom(workspaceID, roomID, reg.protocol)
	if videoConfig != nil {
		room.videoConfig = *videoConfig
	}
	if recoveryConfig != nil {
		room.recoveryConfig = *recoveryConfig
	}
	ws[roomID] = room

	metrics.ActiveRooms.WithLabelValues(string(reg.protocol)).Inc()
	return workspaceID, roomID, nil
}

// DeleteRoom closes every session in the room and removes it. Returns false,
// without error, if the room did not exist; deleting twice is harmless.
func (reg *Registry) DeleteRoom(workspaceID WorkspaceID, roomID RoomID) bool {
	reg.mu.Lock()
	ws, ok := reg.rooms[workspaceID]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	room, ok := ws[roomID]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	delete(ws, roomID)
	if len(ws) == 0 {
		// Workspaces are created lazily, so a later create_room for this id
		// re-creates the entry cleanly; dropping it here keeps long-dead
		// workspace ids from accumulating in the map.
		delete(reg.rooms, workspaceID)
	}
	reg.mu.Unlock()

	room.closeAll()
	metrics.ActiveRooms.WithLabelValues(string(reg.protocol)).Dec()
	return true
}

// ListRooms returns a metadata snapshot of the workspace's rooms, safe to
// call concurrently with mutations.
func (reg *Registry) ListRooms(workspaceID WorkspaceID) []RoomInfo {
	reg.mu.RLock()
	ws, ok := reg.rooms[workspaceID]
	if !ok {
		reg.mu.RUnlock()
		return nil
	}
	rooms := make([]*Room, 0, len(ws))
	for _, room := range ws {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.info())
	}
	return out
}

// GetRoom looks up a room, for use by the WebSocket upgrade handler and the
// signaling broker.
func (reg *Registry) GetRoom(workspaceID WorkspaceID, roomID RoomID) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ws, ok := reg.rooms[workspaceID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room, ok := ws[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetRoomState returns the authoritative deep snapshot of a room.
func (reg *Registry) GetRoomState(workspaceID WorkspaceID, roomID RoomID) (RoomState, error) {
	room, err := reg.GetRoom(workspaceID, roomID)
	if err != nil {
		return RoomState{}, err
	}
	return room.state(), nil
}

// GetRoomInfo returns the shallow room summary.
func (reg *Registry) GetRoomInfo(workspaceID WorkspaceID, roomID RoomID) (RoomInfo, error) {
	room, err := reg.GetRoom(workspaceID, roomID)
	if err != nil {
		return RoomInfo{}, err
	}
	return room.info(), nil
}
