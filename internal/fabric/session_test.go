package fabric

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fleetmesh/fabric/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoom is a minimal roomer for exercising Session.Run without a full Room.
type fakeRoom struct {
	frames chan protocol.Event
	left   chan ParticipantID
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{
		frames: make(chan protocol.Event, 8),
		left:   make(chan ParticipantID, 1),
	}
}

func (f *fakeRoom) handleFrame(from ParticipantID, event protocol.Event, raw []byte) {
	f.frames <- event
}

func (f *fakeRoom) leave(participant ParticipantID) {
	select {
	case f.left <- participant:
	default:
	}
}

func TestSession_ReadPumpDispatchesFramesToRoom(t *testing.T) {
	heartbeat, err := protocol.Encode(protocol.HeartbeatFrame{Type: protocol.EventHeartbeat})
	require.NoError(t, err)

	conn := newFakeConn(heartbeat)
	room := newFakeRoom()
	s := NewSession("p1", RoleProducer, "ws1", "room1", conn, room, 4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case event := <-room.frames:
		assert.Equal(t, protocol.EventHeartbeat, event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched frame")
	}

	select {
	case left := <-room.left:
		assert.Equal(t, ParticipantID("p1"), left)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leave callback")
	}

	<-done
	assert.True(t, conn.isClosed())
}

// sawErrorReply reports whether an error frame is waiting in s's outbound
// queue or has already been written to conn by the write pump.
func sawErrorReply(s *Session, conn *fakeConn) bool {
	for {
		frame, ok := s.outbound.pop()
		if !ok {
			break
		}
		if strings.Contains(string(frame), `"type":"error"`) {
			return true
		}
	}
	for _, frame := range conn.sentFrames() {
		if strings.Contains(string(frame), `"type":"error"`) {
			return true
		}
	}
	return false
}

func TestSession_MalformedFrameGetsErrorReplyAndStaysOpen(t *testing.T) {
	heartbeat, err := protocol.Encode(protocol.HeartbeatFrame{Type: protocol.EventHeartbeat})
	require.NoError(t, err)

	conn := newFakeConn([]byte(`not json`), heartbeat)
	room := newFakeRoom()
	s := NewSession("p1", RoleProducer, "ws1", "room1", conn, room, 4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return sawErrorReply(s, conn)
	}, time.Second, time.Millisecond)

	// The read pump keeps going after the malformed frame: the next frame
	// still reaches the room.
	select {
	case event := <-room.frames:
		assert.Equal(t, protocol.EventHeartbeat, event)
	case <-time.After(time.Second):
		t.Fatal("read pump stopped after a malformed frame")
	}

	s.Close()
	<-done
}

func TestSession_BinaryFrameRejected(t *testing.T) {
	conn := newFakeConn()
	conn.pushBinary([]byte("binary-payload"))
	room := newFakeRoom()
	s := NewSession("p1", RoleProducer, "ws1", "room1", conn, room, 4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return sawErrorReply(s, conn)
	}, time.Second, time.Millisecond)

	s.Close()
	<-done
}

func TestSession_SendAfterCloseIsNoOp(t *testing.T) {
	conn := newFakeConn() // ReadMessage errors immediately, ending readPump
	room := newFakeRoom()
	s := NewSession("p1", RoleConsumer, "ws1", "room1", conn, room, 4)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	<-done // readPump exits immediately since there are no inbound frames

	// Send after close is a no-op; verify the queue rejects it cleanly.
	s.Send([]byte(`{"type":"heartbeat_ack"}`))
	assert.True(t, s.outbound.isClosed())
	assert.Equal(t, 0, s.outbound.len())
}

// TestSession_SendEmitsBackpressureNoticeOnceOnOverflow checks that once the
// outbound queue overflows, the affected peer gets a single
// backpressure_drop error frame, not one per dropped frame.
func TestSession_SendEmitsBackpressureNoticeOnceOnOverflow(t *testing.T) {
	conn := newFakeConn()
	room := newFakeRoom()
	s := NewSession("c1", RoleConsumer, "ws1", "room1", conn, room, 2)

	s.Send([]byte("1"))
	s.Send([]byte("2"))
	s.Send([]byte("3")) // overflow: drops "1", appends a notice
	s.Send([]byte("4")) // still overflowing: no additional notice

	notices := 0
	for {
		frame, ok := s.outbound.pop()
		if !ok {
			break
		}
		var errFrame protocol.ErrorFrame
		if json.Unmarshal(frame, &errFrame) == nil && errFrame.Message == "backpressure_drop" {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
}
