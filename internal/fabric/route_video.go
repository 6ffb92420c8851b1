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

// routeVideo dispatches a single inbound frame for a video room:
// stream_started/stopped, video_config_update, recovery_triggered,
// emergency_stop, status_update, stream_stats. WebRTC offer/answer/ICE
// never arrive on this path; they enter over REST and are handled by
// Broker.RelaySignal.
func (r *Room) routeVideo(ctx context.Context, sender *Session, role Role, event protocol.Event, raw []byte) error {
	switch event {
	case protocol.EventStreamStarted, protocol.EventStreamStopped:
		if role != RoleProducer {
			return fmt.Errorf("only the producer may report stream lifecycle")
		}
		var frame protocol.StreamLifecycleFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		frame.Type = event
		r.mu.Lock()
		if r.telemetry == nil {
			r.telemetry = make(map[string]any)
		}
		r.telemetry[string(event)+"_at"] = protocol.Now()
		r.mu.Unlock()
		r.broadcastToRoles(sender.ID, set.New[Role](RoleConsumer), frame)
		return nil

	case protocol.EventVideoConfigUpdate:
		if role != RoleProducer {
			return fmt.Errorf("only the producer may update video config")
		}
		return r.applyVideoConfigUpdate(raw)

	case protocol.EventRecoveryTriggered:
		if role != RoleConsumer {
			return fmt.Errorf("only a consumer may self-report recovery_triggered")
		}
		var frame protocol.RecoveryTriggeredFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		frame.Type = protocol.EventRecoveryTriggered
		frame.ParticipantID = string(sender.ID)
		r.broadcastToRoles(sender.ID, set.New[Role](RoleProducer, RoleConsumer), frame)
		return nil

	case protocol.EventEmergencyStop:
		var frame protocol.EmergencyStopFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		frame.Type = protocol.EventEmergencyStop
		logging.Warn(ctx, "emergency stop", zap.String("sender", string(sender.ID)))
		r.broadcastToRoles(sender.ID, set.New[Role](RoleProducer, RoleConsumer), frame)
		return nil

	case protocol.EventStatusUpdate, protocol.EventStreamStats:
		return r.recordAndBroadcastTelemetry(sender.ID, event, raw)

	default:
		return fmt.Errorf("unrecognized event type %q for video room", event)
	}
}

func (r *Room) applyVideoConfigUpdate(raw []byte) error {
	var frame protocol.VideoConfigUpdateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	r.mu.Lock()
	mergeVideoConfig(&r.videoConfig, frame.Config)
	merged := r.videoConfig
	r.mu.Unlock()

	encoded, err := protocol.Encode(protocol.VideoConfigUpdateFrame{
		Type:      protocol.EventVideoConfigUpdate,
		Config:    merged,
		Timestamp: protocol.Now(),
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

// mergeVideoConfig overwrites only the fields present in update, leaving the
// rest of cfg untouched.
func mergeVideoConfig(cfg *protocol.VideoConfig, update protocol.VideoConfig) {
	if update.Resolution != "" {
		cfg.Resolution = update.Resolution
	}
	if update.Framerate != 0 {
		cfg.Framerate = update.Framerate
	}
	if update.BitrateKbps != 0 {
		cfg.BitrateKbps = update.BitrateKbps
	}
	if update.Encoding != "" {
		cfg.Encoding = update.Encoding
	}
}

// recordAndBroadcastTelemetry stores the latest observability payload for
// room state reads and forwards it to the rest of the room.
func (r *Room) recordAndBroadcastTelemetry(sender ParticipantID, event protocol.Event, raw []byte) error {
	var frame protocol.ObservabilityFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	frame.Type = event

	r.mu.Lock()
	if r.telemetry == nil {
		r.telemetry = make(map[string]any)
	}
	r.telemetry[string(event)] = frame.Data
	if event == protocol.EventStreamStats {
		if n, ok := frame.Data["frame_count"].(float64); ok {
			r.frameCount = int64(n)
		}
		r.lastFrameAt = time.Now()
	}
	r.mu.Unlock()

	r.broadcastToRoles(sender, set.New[Role](RoleProducer, RoleConsumer), frame)
	return nil
}
