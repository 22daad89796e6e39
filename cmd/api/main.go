// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"eventpipe/config"
	"eventpipe/database"
	"eventpipe/handlers"
	"eventpipe/metrics"
	"eventpipe/middleware"
	"eventpipe/queue"
	"eventpipe/store"
	"eventpipe/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	redisClient, err := database.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	eventStore, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize event store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}
	defer closeStore()

	m := metrics.New(nil)
	eventQueue := queue.NewRedisQueue(redisClient.RDB, queue.Options{
		Key:            cfg.Queue.Key,
		MaxLen:         cfg.Queue.MaxLen,
		OverflowPolicy: queue.OverflowPolicy(cfg.Queue.OverflowPolicy),
	}, m, logger)

	r := handlers.NewRouter(handlers.RouterConfig{
		Events: handlers.NewEventHandlers(eventQueue, cfg.HTTP.MaxBodyBytes, m, logger),
		Stats:  handlers.NewStatsHandlers(eventStore, logger),
		Health: handlers.NewHealthHandlers(map[string]handlers.Pinger{
			"redis": eventQueue,
			"store": eventStore,
		}),
		Metrics: m.Handler(),
		EventRateLimit: middleware.RateLimit(redisClient.RDB, middleware.RateLimitConfig{
			Max:    cfg.HTTP.RateLimitMax,
			Window: cfg.HTTP.RateLimitWindow,
		}, logger),
		StatsAuth:      middleware.StatsAuth(cfg.HTTP.StatsAPIKey, []byte(cfg.HTTP.JWTSecret), logger),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Log:            logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting",
			zap.String("addr", srv.Addr),
			zap.String("queue", eventQueue.Key()),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("API server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting.")
}
