package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CampusLink/notify-sync-backend/cache"
	"github.com/CampusLink/notify-sync-backend/config"
	"github.com/CampusLink/notify-sync-backend/db"
	"github.com/CampusLink/notify-sync-backend/handlers"
	"github.com/CampusLink/notify-sync-backend/internal/events"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/CampusLink/notify-sync-backend/router"
	"github.com/CampusLink/notify-sync-backend/services"
	"github.com/CampusLink/notify-sync-backend/store/postgres"
	"github.com/CampusLink/notify-sync-backend/types"
	"github.com/redis/go-redis/v9"
)

const dedupConsumerID = "local-delivery"

// logDisplayer is the default local delivery sink: the delivery decision is
// the engine's job, rendering is the client's. It records each accepted
// item in the structured log.
type logDisplayer struct{}

func (logDisplayer) Display(ctx context.Context, item types.BroadcastItem) error {
	logger.GetLogger().Infow("Broadcast delivered",
		"id", item.ID,
		"title", item.Title,
		"mode", item.Mode)
	return nil
}

// redisPinger adapts the redis client to the health handler.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer func() {
		_ = logger.Close()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	redisOptions := &redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if cfg.Redis.UseTLS {
		redisOptions.TLSConfig = &tls.Config{
			ServerName: cfg.Redis.Address,
			MinVersion: tls.VersionTLS12,
		}
	}
	redisClient := redis.NewClient(redisOptions)
	defer func() {
		_ = redisClient.Close()
	}()

	remoteStore := postgres.NewPgNotificationStore(pool)
	localCache := cache.NewRedisStore(redisClient)

	mutationService := services.NewSafeMutationService(remoteStore, localCache, cfg.Mutation)
	reconciliationService := services.NewReconciliationService(remoteStore, localCache)
	dedupService := services.NewDedupDeliveryService(localCache, logDisplayer{}, cfg.Dedup)

	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	broadcaster := events.NewRedisBroadcaster(redisClient)

	// Broadcast consumer: subscribe first, then hydrate inside Run, so no
	// event can sneak past an unhydrated dedup window.
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	stream, err := broadcaster.Subscribe(consumerCtx, dedupConsumerID)
	if err != nil {
		log.Fatalf("Failed to subscribe to broadcast queue: %v", err)
	}
	go func() {
		if err := dedupService.Run(consumerCtx, stream); err != nil && consumerCtx.Err() == nil {
			log.Errorw("Broadcast consumer stopped", "error", err)
		}
	}()

	notificationHandler := handlers.NewNotificationHandler(mutationService, remoteStore)
	maintenanceHandler := handlers.NewMaintenanceHandler(reconciliationService, workerPool)
	broadcastHandler := handlers.NewBroadcastHandler(remoteStore, broadcaster)
	healthHandler := handlers.NewHealthHandler(cfg.Server.Version, map[string]handlers.Pinger{
		"database": pool,
		"redis":    redisPinger{client: redisClient},
	})

	r := router.SetupRouter(router.Dependencies{
		Config:              cfg,
		HealthHandler:       healthHandler,
		NotificationHandler: notificationHandler,
		MaintenanceHandler:  maintenanceHandler,
		BroadcastHandler:    broadcastHandler,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server shutdown failed", "error", err)
	}
	stopConsumer()
	if err := broadcaster.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Broadcaster shutdown failed", "error", err)
	}
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Worker pool shutdown failed", "error", err)
	}

	log.Info("Shutdown complete")
}
