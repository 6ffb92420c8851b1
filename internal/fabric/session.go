package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/fleetmesh/fabric/internal/protocol"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// backpressureNoticeFrame is the pre-encoded notice pushed onto an outbound
// queue once per overflow event. Encoded once at package init since its
// contents never vary; nil only if Encode itself is broken, in which case
// push simply skips the notice rather than panicking.
var backpressureNoticeFrame = mustEncodeBackpressureNotice()

func mustEncodeBackpressureNotice() []byte {
	frame, err := protocol.Encode(protocol.ErrorFrame{Type: protocol.EventError, Message: "backpressure_drop"})
	if err != nil {
		return nil
	}
	return frame
}

// sessionState tracks the connection lifecycle: Opening -> Joining ->
// Active -> Closing -> Closed.
type sessionState int

const (
	stateOpening sessionState = iota
	stateJoining
	stateActive
	stateClosing
	stateClosed
)

// wsConnection is the minimal transport surface a Session needs, isolating
// it from gorilla/websocket so tests can substitute an in-memory connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

// roomer is the subset of Room a Session needs, so tests can fake it without
// constructing a full Room/Registry.
type roomer interface {
	handleFrame(from ParticipantID, event protocol.Event, raw []byte)
	leave(participant ParticipantID)
}

// Session is one participant's WebSocket connection. It owns the read/write
// pumps and a bounded, drop-oldest outbound queue so a slow consumer cannot
// block the router or stall other participants. All frames are single JSON
// objects on text frames; binary frames are rejected.
type Session struct {
	ID          ParticipantID
	Role        Role
	WorkspaceID WorkspaceID
	RoomID      RoomID

	conn     wsConnection
	room     roomer
	outbound *outboundQueue

	mu    sync.Mutex
	state sessionState

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps an already-upgraded connection. The caller is expected to
// have completed the join handshake before constructing a Session.
func NewSession(id ParticipantID, role Role, workspaceID WorkspaceID, roomID RoomID, conn wsConnection, room roomer, queueSize int) *Session {
	return &Session{
		ID:          id,
		Role:        role,
		WorkspaceID: workspaceID,
		RoomID:      roomID,
		conn:        conn,
		room:        room,
		outbound:    newOutboundQueue(queueSize),
		state:       stateActive,
		done:        make(chan struct{}),
	}
}

// Run starts the read and write pumps and blocks until the session closes.
func (s *Session) Run(ctx context.Context) {
	ctx = logging.WithParticipant(logging.WithRoom(logging.WithWorkspace(ctx, string(s.WorkspaceID)), string(s.RoomID)), string(s.ID))
	metrics.IncConnection()
	defer metrics.DecConnection()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(ctx)
	}()

	s.readPump(ctx)
	wg.Wait()
}

// Send enqueues a frame for delivery, applying drop-oldest backpressure. On
// overflow it also enqueues a single backpressure_drop notice so the peer
// learns a gap occurred instead of silently missing frames. Non-blocking:
// safe to call from the router's broadcast path.
func (s *Session) Send(frame []byte) {
	if s.outbound.push(frame, backpressureNoticeFrame) {
		metrics.BackpressureDrops.WithLabelValues(string(s.RoomID)).Inc()
	}
}

// Close transitions the session to Closed and unblocks both pumps. Safe to
// call multiple times and from either pump.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()

		s.outbound.close()
		close(s.done)
		_ = s.conn.Close()
		s.room.leave(s.ID)
	})
}

func (s *Session) readPump(ctx context.Context) {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			logging.Debug(ctx, "read pump exiting", zap.Error(err))
			return
		}

		if msgType != textMessageType {
			logging.Warn(ctx, "rejecting non-text frame")
			metrics.WebsocketEvents.WithLabelValues("unknown", "binary_frame").Inc()
			s.sendProtocolError(ctx, "binary frames are not supported; send a single JSON object per text frame")
			continue
		}

		event, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			logging.Warn(ctx, "dropping malformed frame", zap.Error(err))
			metrics.WebsocketEvents.WithLabelValues("unknown", "malformed").Inc()
			s.sendProtocolError(ctx, err.Error())
			continue
		}

		s.room.handleFrame(s.ID, event, raw)
	}
}

// sendProtocolError replies to a decode-time protocol violation without
// touching room state or closing the session.
func (s *Session) sendProtocolError(ctx context.Context, message string) {
	frame, err := protocol.Encode(protocol.ErrorFrame{Type: protocol.EventError, Message: message, Timestamp: protocol.Now()})
	if err != nil {
		logging.Warn(ctx, "failed to encode protocol error frame", zap.Error(err))
		return
	}
	s.Send(frame)
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(pingMessageType, nil); err != nil {
				return
			}
		case <-s.outbound.wait():
			for {
				frame, ok := s.outbound.pop()
				if !ok {
					break
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(textMessageType, frame); err != nil {
					return
				}
			}
			if s.outbound.isClosed() {
				return
			}
		}
	}
}

// Message types mirror gorilla/websocket's constants without importing the
// package here, keeping wsConnection implementations swappable in tests.
const (
	textMessageType   = 1
	binaryMessageType = 2
	pingMessageType   = 9
)
