// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
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
	"eventpipe/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	w := worker.New(eventQueue, eventStore, worker.Config{
		PopTimeout:   cfg.Worker.PopTimeout,
		WriteTimeout: cfg.Worker.WriteTimeout,
		Backoff:      newBackoff(cfg.Worker),
	}, m, logger)

	// Probe and scrape endpoint; the worker itself serves no API.
	ops := gin.New()
	ops.Use(middleware.Recovery(logger))
	ops.GET("/healthz", handlers.NewHealthHandlers(map[string]handlers.Pinger{
		"redis": eventQueue,
		"store": eventStore,
	}).Healthz)
	ops.GET("/metrics", gin.WrapH(m.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           ops,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listener starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics listener failed", zap.Error(err))
		}
	}()

	w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics listener forced to shutdown", zap.Error(err))
	}

	logger.Info("Worker exiting.")
}

func newBackoff(cfg config.WorkerConfig) worker.Backoff {
	if cfg.BackoffPolicy == config.BackoffExponential {
		return worker.ExponentialBackoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax}
	}
	return worker.FixedBackoff{Interval: cfg.BackoffBase}
}
