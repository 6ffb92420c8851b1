package fabric

import (
	"errors"
	"sync"
	"time"
)

// fakeConn is an in-memory wsConnection for exercising Session without a
// real socket.
type fakeConn struct {
	mu           sync.Mutex
	inbound      [][]byte
	inboundTypes []int
	outbound     [][]byte
	closed       bool
	readIdx      int
}

func newFakeConn(inbound ...[]byte) *fakeConn {
	types := make([]int, len(inbound))
	for i := range types {
		types[i] = textMessageType
	}
	return &fakeConn{inbound: inbound, inboundTypes: types}
}

// pushBinary queues a binary-frame message for the next ReadMessage call.
func (f *fakeConn) pushBinary(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, data)
	f.inboundTypes = append(f.inboundTypes, binaryMessageType)
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readIdx >= len(f.inbound) {
		return 0, nil, errors.New("fakeConn: no more messages")
	}
	msg := f.inbound[f.readIdx]
	msgType := f.inboundTypes[f.readIdx]
	f.readIdx++
	return msgType, msg, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == pingMessageType {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.outbound = append(f.outbound, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) SetReadLimit(int64)                {}

func (f *fakeConn) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
