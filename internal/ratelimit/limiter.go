// Package ratelimit implements in-memory REST rate limiting for the fabric.
package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/fleetmesh/fabric/internal/config"
	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimiter holds the rate limiter instances for the REST surface. The
// fabric is single-process, so only the in-memory store is wired; there is
// no distributed state to share.
type RateLimiter struct {
	rooms  *limiter.Limiter
	signal *limiter.Limiter
}

// New creates a RateLimiter from the validated config.
func New(cfg *config.Config) (*RateLimiter, error) {
	roomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, err
	}
	signalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPISignal)
	if err != nil {
		return nil, err
	}

	// One store per limiter: both key by workspace + client IP, so a shared
	// store would count room and signaling calls against a single counter.
	return &RateLimiter{
		rooms:  limiter.New(memory.NewStore(), roomsRate),
		signal: limiter.New(memory.NewStore(), signalRate),
	}, nil
}

// RoomsMiddleware rate-limits room create/delete/list calls by workspace + client IP.
func (rl *RateLimiter) RoomsMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.rooms, "rooms")
}

// SignalMiddleware rate-limits WebRTC signaling REST calls by workspace + client IP.
func (rl *RateLimiter) SignalMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.signal, "webrtc_signal")
}

func (rl *RateLimiter) middleware(l *limiter.Limiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("ws") + ":" + c.ClientIP()

		ctx := c.Request.Context()
		limiterCtx, err := l.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next() // fail open
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiterCtx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limiterCtx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limiterCtx.Reset, 10))

		if limiterCtx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpoint).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests",
			})
			return
		}

		c.Next()
	}
}
