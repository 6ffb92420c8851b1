package restapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fleetmesh/fabric/internal/fabric"
	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// serveWebSocket runs the connection handshake: upgrade, read the join
// frame, admit the session into the room, reply joined/error, then hand off
// to Session.Run. Any invalid first frame gets an error reply and a close;
// a session only enters a room through a valid join.
func (s *Server) serveWebSocket(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	roomID := fabric.RoomID(c.Param("id"))

	room, err := s.registryFor(c).GetRoom(wsID, roomID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, s.allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	var join protocol.JoinRequest
	if err := json.Unmarshal(raw, &join); err != nil || join.ParticipantID == "" || (join.Role != fabric.RoleProducer && join.Role != fabric.RoleConsumer) {
		sendJoinError(conn, "malformed or invalid join frame")
		_ = conn.Close()
		return
	}

	participantID := fabric.ParticipantID(join.ParticipantID)
	session := fabric.NewSession(participantID, join.Role, wsID, roomID, conn, room, s.queueSize)

	if err := room.Admit(session); err != nil {
		sendJoinError(conn, err.Error())
		_ = conn.Close()
		return
	}

	joined, err := protocol.Encode(protocol.JoinedFrame{
		Type:      protocol.EventJoined,
		RoomID:    string(roomID),
		Role:      join.Role,
		Timestamp: protocol.Now(),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, joined)
	}

	session.Run(c.Request.Context())
}

func sendJoinError(conn *websocket.Conn, message string) {
	frame, err := protocol.Encode(protocol.ErrorFrame{Type: protocol.EventError, Message: message, Timestamp: protocol.Now()})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}

// validateOrigin allows non-browser clients (no Origin header) and checks
// scheme+host membership in allowedOrigins otherwise.
func validateOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}
