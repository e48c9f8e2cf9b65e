package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
	"golang.org/x/time/rate"

	"wordrace/internal/coordinator"
	"wordrace/internal/store"
)

// App bundles the shared dependencies for all handlers. Room truth never
// lives here — every handler round-trips through the store, so any
// number of instances can run side by side.
type App struct {
	Store *store.Store
	Coord *coordinator.Coordinator

	RoomTTL              time.Duration
	SessionTTL           time.Duration
	LivenessWindow       time.Duration
	SSEUpdateInterval    time.Duration
	SSECountInterval     time.Duration
	SSEHeartbeatInterval time.Duration
	RateLimitRPS         int
	RateLimitBurst       int
	IsProduction         bool
	StartTime            time.Time

	LimiterMap   map[string]*rate.Limiter
	LimiterMutex sync.Mutex
}

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	logInfo("Starting wordrace in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	st, err := store.Open(getEnv("REDIS_URL", "redis://localhost:6379"))
	if err != nil {
		logFatal("Failed to connect to Redis: %v", err)
	}
	defer st.Close()

	app := newApp(st, isProduction)
	router := app.setupRouter()
	startServer(router)
}

func newApp(st *store.Store, isProduction bool) *App {
	roomTTL := getEnvDuration("ROOM_TTL", 15*time.Minute)
	return &App{
		Store:                st,
		Coord:                &coordinator.Coordinator{Store: st, RoomTTL: roomTTL},
		RoomTTL:              roomTTL,
		SessionTTL:           getEnvDuration("SESSION_TTL", 5*time.Minute),
		LivenessWindow:       getEnvDuration("LIVENESS_WINDOW", 30*time.Minute),
		SSEUpdateInterval:    getEnvDuration("SSE_UPDATE_INTERVAL", 2*time.Second),
		SSECountInterval:     getEnvDuration("SSE_COUNT_INTERVAL", 5*time.Second),
		SSEHeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second),
		RateLimitRPS:         getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:       getEnvInt("RATE_LIMIT_BURST", 10),
		IsProduction:         isProduction,
		StartTime:            time.Now(),
		LimiterMap:           make(map[string]*rate.Limiter),
	}
}

// setupRouter wires middleware and routes. Mutating routes are
// rate-limited per client IP; the SSE endpoints are excluded from gzip
// because buffering breaks event delivery.
func (app *App) setupRouter() *gin.Engine {
	if app.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedPaths([]string{"/api/sse"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(requestIDMiddleware())
	router.Use(cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))

	limited := app.rateLimitMiddleware()

	router.POST(RouteRoom, limited, app.createRoomHandler)
	router.PUT(RouteRoom, limited, app.joinRoomHandler)
	router.GET(RouteRoom, app.roomInfoHandler)
	router.POST(RouteRoomReady, limited, app.readyHandler)
	router.POST(RouteRoomGuess, limited, app.guessHandler)
	router.PUT(RouteRoomScore, limited, app.scoreHandler)
	router.PUT(RouteRoomWords, limited, app.wordsHandler)
	router.POST(RouteRoomLeave, limited, app.leaveHandler)
	router.PUT(RouteRoomGameOver, limited, app.gameOverHandler)
	router.POST(RouteRoomActivity, app.activityHandler)
	router.POST(RouteRoomCleanup, app.roomCleanupHandler)
	router.GET(RoutePlayerCount, app.playerCountHandler)
	router.POST(RoutePlayerCountRemove, app.playerCountRemoveHandler)
	router.POST(RoutePlayerCountCleanup, app.playerCountCleanupHandler)
	router.GET(RouteSSERoom, app.roomStreamHandler)
	router.GET(RouteSSEPlayerCount, app.playerCountStreamHandler)
	router.GET(RouteHealthz, app.healthzHandler)

	return router
}

func startServer(router *gin.Engine) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		logInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	logInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	logInfo("Server shutdown complete")
}
