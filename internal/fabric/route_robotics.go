package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/protocol"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// routeRobotics dispatches a single inbound frame for a robotics room:
// joint_update, state_sync, emergency_stop, heartbeat, or an unrecognized
// type (protocol violation). Only a producer may command joints or resync
// state; any participant may send heartbeat or emergency_stop. Consumers
// request a fresh snapshot out-of-band via REST, not over the socket.
func (r *Room) routeRobotics(ctx context.Context, sender *Session, role Role, event protocol.Event, raw []byte) error {
	switch event {
	case protocol.EventJointUpdate:
		if role != RoleProducer {
			return fmt.Errorf("only the producer may send joint_update")
		}
		return r.applyJointUpdate(raw)

	case protocol.EventStateSync:
		if role != RoleProducer {
			return fmt.Errorf("only the producer may send state_sync")
		}
		return r.applyStateSync(raw)

	case protocol.EventEmergencyStop:
		var frame protocol.EmergencyStopFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		frame.Type = protocol.EventEmergencyStop
		logging.Warn(ctx, "emergency stop", zap.String("sender", string(sender.ID)))
		r.broadcastToRoles(sender.ID, set.New[Role](RoleProducer, RoleConsumer), frame)
		return nil

	case protocol.EventHeartbeat:
		ack, err := protocol.Encode(protocol.HeartbeatFrame{Type: protocol.EventHeartbeatAck, Timestamp: protocol.Now()})
		if err != nil {
			return err
		}
		sender.Send(ack)
		return nil

	default:
		return fmt.Errorf("unrecognized event type %q for robotics room", event)
	}
}

// applyJointUpdate merges incoming joint values into room state
// (last-write-wins per joint name) and fans the frame out to every consumer
// in arrival order. The producer never receives an echo of its own update.
func (r *Room) applyJointUpdate(raw []byte) error {
	var frame protocol.JointUpdateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(frame.Data) == 0 {
		// An empty update list is a no-op, not broadcast.
		return nil
	}

	r.mu.Lock()
	for _, entry := range frame.Data {
		r.joints[entry.Name] = entry.Value
	}
	r.lastUpdateAt = time.Now()
	r.mu.Unlock()

	// Relayed as-is: the producer's timestamp, if any, is preserved.
	frame.Type = protocol.EventJointUpdate
	encoded, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.consumers {
		c.Send(encoded)
	}
	return nil
}

// applyStateSync merges a producer's state_sync payload into room state
// (joint names absent from the payload are left unchanged) and broadcasts
// the merged entries to all consumers converted to joint_update list form.
// A payload that matches current values is still applied and broadcast:
// consumers may have missed prior traffic, and the fabric keeps no
// per-consumer deltas.
func (r *Room) applyStateSync(raw []byte) error {
	var frame protocol.StateSyncFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(frame.Joints) == 0 {
		return nil
	}

	r.mu.Lock()
	for name, value := range frame.Joints {
		r.joints[name] = value
	}
	r.lastUpdateAt = time.Now()
	r.mu.Unlock()

	entries := make([]protocol.JointEntry, 0, len(frame.Joints))
	for name, value := range frame.Joints {
		entries = append(entries, protocol.JointEntry{Name: name, Value: value})
	}
	encoded, err := protocol.Encode(protocol.JointUpdateFrame{
		Type:      protocol.EventJointUpdate,
		Data:      entries,
		Timestamp: frame.Timestamp,
	})
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.consumers {
		c.Send(encoded)
	}
	return nil
}

// sendStateSync pushes the current joint snapshot to a single session,
// used to catch up a newly-admitted consumer.
func (r *Room) sendStateSync(to *Session) {
	joints := r.stateSnapshot()
	frame, err := protocol.Encode(protocol.StateSyncFrame{
		Type:      protocol.EventStateSync,
		Joints:    joints,
		Timestamp: protocol.Now(),
	})
	if err != nil {
		return
	}
	to.Send(frame)
}
