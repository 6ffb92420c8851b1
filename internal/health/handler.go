// Package health exposes liveness and readiness probes for the fabric process.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the shape returned by both probes.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Liveness handles GET /health. Returns 200 as long as the process is alive;
// it performs no dependency checks, since the fabric has no required external
// dependency (no database, no cross-process bus, no auth provider).
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /ready. In this single-process, in-memory fabric,
// readiness is equivalent to liveness: there is no external dependency whose
// unavailability should take the process out of rotation.
func Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
