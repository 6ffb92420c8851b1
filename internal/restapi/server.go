// Package restapi implements the HTTP surface of the fabric: room lifecycle
// and listing for both protocols, the WebRTC signaling relay endpoint for
// video rooms, and the WebSocket upgrade/join handshake.
package restapi

import (
	"errors"
	"net/http"

	"github.com/fleetmesh/fabric/internal/fabric"
	"github.com/fleetmesh/fabric/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Server holds the two protocol registries and the signaling broker, and
// exposes gin handlers over them.
type Server struct {
	registries     map[fabric.Protocol]*fabric.Registry
	broker         *fabric.Broker
	queueSize      int
	allowedOrigins []string
}

// NewServer builds a Server wired to the given per-protocol registries.
func NewServer(robotics, video *fabric.Registry, broker *fabric.Broker, queueSize int, allowedOrigins []string) *Server {
	return &Server{
		registries: map[fabric.Protocol]*fabric.Registry{
			fabric.ProtocolRobotics: robotics,
			fabric.ProtocolVideo:    video,
		},
		broker:         broker,
		queueSize:      queueSize,
		allowedOrigins: allowedOrigins,
	}
}

// RegisterRoutes wires the REST and WebSocket routes onto engine.
func (s *Server) RegisterRoutes(engine *gin.Engine, rl *ratelimit.RateLimiter) {
	proto := engine.Group("/:proto")
	proto.Use(s.requireValidProtocol())

	ws := proto.Group("/workspaces/:ws")
	{
		rooms := ws.Group("/rooms")
		rooms.Use(rl.RoomsMiddleware())
		rooms.GET("", s.listRooms)
		rooms.POST("", s.createRoom)
		rooms.GET("/:id", s.getRoom)
		rooms.GET("/:id/state", s.getRoomState)
		rooms.DELETE("/:id", s.deleteRoom)
		rooms.GET("/:id/ws", s.serveWebSocket)

		signal := ws.Group("/rooms/:id/webrtc/signal")
		signal.Use(rl.SignalMiddleware(), s.requireVideoProtocol())
		signal.POST("", s.signalWebRTC)
	}
}

// requireValidProtocol rejects any :proto other than robotics/video before
// any handler runs.
func (s *Server) requireValidProtocol() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := fabric.Protocol(c.Param("proto"))
		if p != fabric.ProtocolRobotics && p != fabric.ProtocolVideo {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "unknown protocol",
			})
			return
		}
		c.Set("fabric_protocol", p)
		c.Next()
	}
}

// requireVideoProtocol guards the WebRTC signaling endpoint, which only
// exists for video rooms.
func (s *Server) requireVideoProtocol() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.protocolFromContext(c) != fabric.ProtocolVideo {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "webrtc signaling is only available for video rooms",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) protocolFromContext(c *gin.Context) fabric.Protocol {
	p, _ := c.Get("fabric_protocol")
	proto, _ := p.(fabric.Protocol)
	return proto
}

func (s *Server) registryFor(c *gin.Context) *fabric.Registry {
	return s.registries[s.protocolFromContext(c)]
}

// errorStatus maps the fabric's sentinel errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isAny(err, fabric.ErrRoomNotFound, fabric.ErrWorkspaceNotFound, fabric.ErrUnknownPeer):
		return http.StatusNotFound
	case isAny(err, fabric.ErrRoomExists, fabric.ErrProducerExists, fabric.ErrParticipantExists):
		return http.StatusConflict
	case isAny(err, fabric.ErrInvalidRole, fabric.ErrMalformedFrame, fabric.ErrProtocolMismatch,
		fabric.ErrInvalidSignal, fabric.ErrSignalDirection):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
