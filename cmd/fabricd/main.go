// Command fabricd runs the real-time transport fabric: the robotics and
// video REST/WebSocket surfaces, backed by independent workspace/room
// registries, sharing one WebRTC signaling broker. Shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetmesh/fabric/internal/config"
	"github.com/fleetmesh/fabric/internal/fabric"
	"github.com/fleetmesh/fabric/internal/health"
	"github.com/fleetmesh/fabric/internal/logging"
	"github.com/fleetmesh/fabric/internal/middleware"
	"github.com/fleetmesh/fabric/internal/ratelimit"
	"github.com/fleetmesh/fabric/internal/restapi"
	"github.com/fleetmesh/fabric/internal/tracing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	ctx := context.Background()
	tp, err := tracing.InitTracer(ctx, "fabric", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled: failed to initialize tracer", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	roboticsRegistry := fabric.NewRegistry(fabric.ProtocolRobotics)
	videoRegistry := fabric.NewRegistry(fabric.ProtocolVideo)
	broker := fabric.NewBroker()

	rl, err := ratelimit.New(cfg)
	if err != nil {
		logger.Fatal("failed to initialize rate limiter", zap.Error(err))
	}

	if cfg.GoEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("fabric"))
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-Correlation-ID")
	router.Use(cors.New(corsConfig))

	router.GET("/health", health.Liveness)
	router.GET("/ready", health.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	restapi.NewServer(roboticsRegistry, videoRegistry, broker, cfg.OutboundQueueSize, cfg.AllowedOrigins).
		RegisterRoutes(router, rl)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("fabric server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
