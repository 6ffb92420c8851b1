// Package middleware contains gin middleware shared by the REST surface.
package middleware

import (
	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header key for the correlation id.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID attaches a correlation id to the response header and to
// c.Request's context.Context (not just gin's own key/value store, which
// logging.Warn/Error never see since they take a context.Context from
// c.Request.Context()). It also folds in this fabric's own workspace_id/
// room_id route params (the /:proto/workspaces/:ws/rooms/:id routes) when
// present, so every log line a REST handler emits is already scoped to the
// room it concerns without each handler threading logging.WithWorkspace/
// WithRoom by hand.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		source := "client"
		if correlationID == "" {
			correlationID = uuid.New().String()
			source = "generated"
		}
		metrics.CorrelationIDs.WithLabelValues(source).Inc()

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)

		ctx := c.Request.Context()
		ctx = logging.WithCorrelationID(ctx, correlationID)
		if ws := c.Param("ws"); ws != "" {
			ctx = logging.WithWorkspace(ctx, ws)
		}
		if roomID := c.Param("id"); roomID != "" {
			ctx = logging.WithRoom(ctx, roomID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
