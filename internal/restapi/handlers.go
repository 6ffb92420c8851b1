package restapi

import (
	"net/http"

	"github.com/fleetmesh/fabric/internal/fabric"
	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/protocol"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createRoomRequest struct {
	RoomID         string                   `json:"room_id"`
	WorkspaceID    string                   `json:"workspace_id"`
	Config         *protocol.VideoConfig    `json:"config"`
	RecoveryConfig *protocol.RecoveryConfig `json:"recovery_config"`
}

func (s *Server) listRooms(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	rooms := s.registryFor(c).ListRooms(wsID)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"workspace_id": wsID,
		"rooms":        rooms,
		"total":        len(rooms),
	})
}

func (s *Server) createRoom(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))

	var req createRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
			return
		}
	}
	if req.WorkspaceID != "" {
		wsID = fabric.WorkspaceID(req.WorkspaceID)
	}

	_, roomID, err := s.registryFor(c).CreateRoom(wsID, fabric.RoomID(req.RoomID), req.Config, req.RecoveryConfig)
	if err != nil {
		logging.Warn(c.Request.Context(), "create_room failed", zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"workspace_id": wsID,
		"room_id":      roomID,
		"message":      "room created",
	})
}

func (s *Server) getRoom(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	roomID := fabric.RoomID(c.Param("id"))

	info, err := s.registryFor(c).GetRoomInfo(wsID, roomID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "workspace_id": wsID, "room": info})
}

func (s *Server) getRoomState(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	roomID := fabric.RoomID(c.Param("id"))

	state, err := s.registryFor(c).GetRoomState(wsID, roomID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "workspace_id": wsID, "state": state})
}

func (s *Server) deleteRoom(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	roomID := fabric.RoomID(c.Param("id"))

	s.registryFor(c).DeleteRoom(wsID, roomID)
	c.JSON(http.StatusOK, gin.H{"success": true, "workspace_id": wsID, "message": "room deleted"})
}

// signalWebRTC handles POST .../webrtc/signal: client_id is the sender
// already admitted to the room; message carries a type (offer/answer/ice)
// and one of target_consumer/target_producer. Signaling is best-effort: a
// missing target never affects the room, but it is still reported to the
// caller as a non-2xx response.
func (s *Server) signalWebRTC(c *gin.Context) {
	wsID := fabric.WorkspaceID(c.Param("ws"))
	roomID := fabric.RoomID(c.Param("id"))

	var req protocol.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}
	if req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "client_id is required"})
		return
	}

	room, err := s.registryFor(c).GetRoom(wsID, roomID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := s.broker.RelaySignal(room, fabric.ParticipantID(req.ClientID), req.Message); err != nil {
		logging.Warn(c.Request.Context(), "webrtc signal relay failed", zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "workspace_id": wsID, "message": "signal relayed"})
}
