package fabric

import "errors"

// Sentinel errors, matched with errors.Is by the REST layer to map onto
// status codes and by the WebSocket path to decide whether a join failure
// closes the connection.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExists        = errors.New("room already exists")
	ErrProducerExists    = errors.New("room already has a producer")
	ErrParticipantExists = errors.New("participant id already in use in this room")
	ErrUnknownPeer       = errors.New("unknown peer")
	ErrInvalidRole       = errors.New("invalid role")
	ErrProtocolMismatch  = errors.New("message not valid for this room's protocol")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrSessionClosed     = errors.New("session closed")
	ErrInvalidSignal     = errors.New("invalid webrtc signal message")
	ErrSignalDirection   = errors.New("signal message targets the wrong role for the sender")
)
