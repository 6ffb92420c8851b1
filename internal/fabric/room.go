package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/fleetmesh/fabric/internal/protocol"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// Room holds one producer slot and a set of consumers for either a robotics
// or a video workspace room. mu guards the role maps and the per-protocol
// state; every method that reads or mutates them (admit, leave, the route
// methods) acquires it itself. Empty rooms persist until an explicit DeleteRoom call, so a
// producer can reconnect to the same room id without consumers losing their
// subscriptions.
type Room struct {
	WorkspaceID WorkspaceID
	RoomID      RoomID
	Protocol    Protocol

	mu        sync.RWMutex
	createdAt time.Time
	producer  *Session
	consumers map[ParticipantID]*Session

	// Robotics-only state.
	joints       map[string]float64
	lastUpdateAt time.Time

	// Video-only state.
	videoConfig    protocol.VideoConfig
	recoveryConfig protocol.RecoveryConfig
	telemetry      map[string]any
	frameCount     int64
	lastFrameAt    time.Time
}

// NewRoom constructs an empty room for the given protocol.
func NewRoom(workspaceID WorkspaceID, roomID RoomID, proto Protocol) *Room {
	r := &Room{
		WorkspaceID: workspaceID,
		RoomID:      roomID,
		Protocol:    proto,
		createdAt:   time.Now(),
		consumers:   make(map[ParticipantID]*Session),
	}
	if proto == ProtocolRobotics {
		r.joints = make(map[string]float64)
	}
	return r
}

// Admit exposes admit to other packages (the WebSocket upgrade handler
// admits a session once the join handshake validates).
func (r *Room) Admit(s *Session) error {
	return r.admit(s)
}

// admit adds a session to the room, enforcing at most one producer per room
// and one role per participant id. For robotics rooms, a newly-admitted
// consumer also receives a state_sync catch-up of the current joint snapshot
// if it is non-empty.
func (r *Room) admit(s *Session) error {
	r.mu.Lock()

	if _, exists := r.consumers[s.ID]; exists {
		r.mu.Unlock()
		return ErrParticipantExists
	}
	if r.producer != nil && r.producer.ID == s.ID {
		r.mu.Unlock()
		return ErrParticipantExists
	}
	if s.Role == RoleProducer && r.producer != nil {
		r.mu.Unlock()
		return ErrProducerExists
	}

	switch s.Role {
	case RoleProducer:
		r.producer = s
	case RoleConsumer:
		r.consumers[s.ID] = s
	default:
		r.mu.Unlock()
		return ErrInvalidRole
	}

	metrics.RoomParticipants.WithLabelValues(string(r.RoomID)).Set(float64(r.participantCountLocked()))
	needsCatchUp := r.Protocol == ProtocolRobotics && s.Role == RoleConsumer && len(r.joints) > 0
	r.mu.Unlock()

	if r.Protocol == ProtocolVideo {
		r.broadcastExcept(s.ID, protocol.ParticipantEventFrame{
			Type:          protocol.EventParticipantJoined,
			ParticipantID: string(s.ID),
			Role:          s.Role,
			Timestamp:     protocol.Now(),
		})
	}
	if needsCatchUp {
		r.sendStateSync(s)
	}
	return nil
}

// leave removes a participant from the room. It never triggers room
// deletion: rooms are cleaned up only via an explicit registry DeleteRoom.
func (r *Room) leave(participant ParticipantID) {
	r.mu.Lock()
	var left *Session
	if r.producer != nil && r.producer.ID == participant {
		left = r.producer
		r.producer = nil
	} else if s, ok := r.consumers[participant]; ok {
		left = s
		delete(r.consumers, participant)
	}
	if left == nil {
		r.mu.Unlock()
		return
	}
	metrics.RoomParticipants.WithLabelValues(string(r.RoomID)).Set(float64(r.participantCountLocked()))
	r.mu.Unlock()

	if r.Protocol == ProtocolVideo {
		r.broadcastExcept(participant, protocol.ParticipantEventFrame{
			Type:          protocol.EventParticipantLeft,
			ParticipantID: string(participant),
			Role:          left.Role,
			Timestamp:     protocol.Now(),
		})
	}
}

// closeAll closes every session in the room, sending a farewell error frame
// first so clients see a reason for the disconnect rather than a bare close.
func (r *Room) closeAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.consumers)+1)
	if r.producer != nil {
		sessions = append(sessions, r.producer)
	}
	for _, c := range r.consumers {
		sessions = append(sessions, c)
	}
	r.mu.RUnlock()

	farewell, err := protocol.Encode(protocol.ErrorFrame{
		Type:      protocol.EventError,
		Message:   "room_deleted",
		Timestamp: protocol.Now(),
	})
	for _, s := range sessions {
		if err == nil {
			s.Send(farewell)
		}
		s.Close()
	}
}

func (r *Room) participantCountLocked() int {
	n := len(r.consumers)
	if r.producer != nil {
		n++
	}
	return n
}

// info returns the externally visible room summary.
func (r *Room) info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := RoomInfo{
		WorkspaceID:   r.WorkspaceID,
		RoomID:        r.RoomID,
		Protocol:      r.Protocol,
		CreatedAt:     r.createdAt.UTC().Format(time.RFC3339Nano),
		HasProducer:   r.producer != nil,
		ConsumerCount: len(r.consumers),
	}
	if r.Protocol == ProtocolVideo {
		vc := r.videoConfig
		rc := r.recoveryConfig
		out.VideoConfig = &vc
		out.RecoveryConfig = &rc
	}
	return out
}

// stateSnapshot returns a copy of the current joint map, used for state
// reads and for syncing a newly joined consumer.
func (r *Room) stateSnapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]float64, len(r.joints))
	for k, v := range r.joints {
		snap[k] = v
	}
	return snap
}

// state returns the full authoritative snapshot of the room.
func (r *Room) state() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := RoomInfo{
		WorkspaceID:   r.WorkspaceID,
		RoomID:        r.RoomID,
		Protocol:      r.Protocol,
		CreatedAt:     r.createdAt.UTC().Format(time.RFC3339Nano),
		HasProducer:   r.producer != nil,
		ConsumerCount: len(r.consumers),
	}

	switch r.Protocol {
	case ProtocolRobotics:
		joints := make(map[string]float64, len(r.joints))
		for k, v := range r.joints {
			joints[k] = v
		}
		state := RoomState{RoomInfo: info, Joints: joints}
		if !r.lastUpdateAt.IsZero() {
			state.LastUpdateAt = r.lastUpdateAt.UTC().Format(time.RFC3339Nano)
		}
		return state
	default:
		vc := r.videoConfig
		rc := r.recoveryConfig
		info.VideoConfig = &vc
		info.RecoveryConfig = &rc
		telemetry := make(map[string]any, len(r.telemetry))
		for k, v := range r.telemetry {
			telemetry[k] = v
		}
		state := RoomState{RoomInfo: info, Telemetry: telemetry, FrameCount: r.frameCount}
		if !r.lastFrameAt.IsZero() {
			state.LastFrameAt = r.lastFrameAt.UTC().Format(time.RFC3339Nano)
		}
		return state
	}
}

// handleFrame is the central event dispatch: resolve the sender's role,
// route the frame through the protocol-specific router, and report any
// rejection back to the sender as an error frame.
func (r *Room) handleFrame(from ParticipantID, event protocol.Event, raw []byte) {
	start := time.Now()
	ctx := logging.WithRoom(logging.WithWorkspace(context.Background(), string(r.WorkspaceID)), string(r.RoomID))
	outcome := "ok"
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())
		metrics.WebsocketEvents.WithLabelValues(string(event), outcome).Inc()
	}()

	sender, role, ok := r.lookup(from)
	if !ok {
		outcome = "unknown_sender"
		return
	}

	var err error
	if r.Protocol == ProtocolRobotics {
		err = r.routeRobotics(ctx, sender, role, event, raw)
	} else {
		err = r.routeVideo(ctx, sender, role, event, raw)
	}
	if err != nil {
		outcome = "error"
		logging.Warn(ctx, "frame rejected", zap.String("event", string(event)), zap.Error(err))
		r.sendError(sender, err.Error())
	}
}

// LookupSession exposes lookup to other packages (the REST layer needs it to
// resolve the sender of a signaling request).
func (r *Room) LookupSession(id ParticipantID) (*Session, Role, bool) {
	return r.lookup(id)
}

func (r *Room) lookup(id ParticipantID) (*Session, Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.producer != nil && r.producer.ID == id {
		return r.producer, RoleProducer, true
	}
	if s, ok := r.consumers[id]; ok {
		return s, RoleConsumer, true
	}
	return nil, "", false
}

func (r *Room) sendError(to *Session, message string) {
	frame, err := protocol.Encode(protocol.ErrorFrame{Type: protocol.EventError, Message: message, Timestamp: protocol.Now()})
	if err != nil {
		return
	}
	to.Send(frame)
}

func (r *Room) broadcastExcept(exclude ParticipantID, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.sendToAllLocked(exclude, frame)
}

func (r *Room) sendToAllLocked(exclude ParticipantID, frame []byte) {
	if r.producer != nil && r.producer.ID != exclude {
		r.producer.Send(frame)
	}
	for id, c := range r.consumers {
		if id == exclude {
			continue
		}
		c.Send(frame)
	}
}

// broadcastToRoles sends frame to every session whose role is in roles,
// excluding the sender.
func (r *Room) broadcastToRoles(exclude ParticipantID, roles set.Set[Role], v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if roles.Has(RoleProducer) && r.producer != nil && r.producer.ID != exclude {
		r.producer.Send(frame)
	}
	if roles.Has(RoleConsumer) {
		for id, c := range r.consumers {
			if id == exclude {
				continue
			}
			c.Send(frame)
		}
	}
}
