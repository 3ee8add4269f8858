package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"zalo-hub/config"
	"zalo-hub/internal/handler"
	"zalo-hub/internal/middleware"
	"zalo-hub/internal/redis"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/server"
	"zalo-hub/internal/services"
	"zalo-hub/internal/session"
	"zalo-hub/internal/status"
	"zalo-hub/internal/storage"
	"zalo-hub/internal/websocket"
	"zalo-hub/internal/zalo"
	"zalo-hub/pkg/database"
	"zalo-hub/pkg/logger"
)

const presenceTTL = 30 * time.Minute

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.NewWithFile(cfg.LogMode, logger.FileConfig{Filename: cfg.LogFile})
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database.Connect(cfg)
	defer database.Close()
	if err := repository.InitSchema(database.DB); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	health := map[string]server.HealthCheck{
		"database": func(context.Context) error { return database.HealthCheck() },
	}

	// Redis is optional: it backs the sticker cache, the presence mirror and
	// rate limits.
	var (
		stickerCache services.StickerCache
		presence     services.PresenceMirror
		sendLimiter  services.SendLimiter
		adminLimiter middleware.AdminLimiter
		sendQuota    handler.SendQuota
	)
	if cfg.RedisEnabled {
		redis.Initialize(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redis.Close()
		if err := redis.Ping(ctx); err != nil {
			appLogger.Warnf("Redis not reachable at startup: %v", err)
		}
		rdb := redis.GetClient()
		stickerCache = redis.NewCacheStore(rdb, redis.DefaultCacheConfig())
		presenceStore := redis.NewPresenceStore(rdb, redis.NewPublisher(rdb), presenceTTL)
		presence = presenceStore
		limiter := redis.NewRateLimiter(rdb, redis.RateLimitConfig{SendLimit: cfg.SendRateLimit})
		sendLimiter = limiter
		adminLimiter = limiter
		sendQuota = limiter
		health["redis"] = redis.Ping
		defer func() {
			clearCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := presenceStore.Clear(clearCtx); err != nil {
				appLogger.Warnf("Failed to clear presence: %v", err)
			}
		}()
	}

	files, err := openFileStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open file store: %v", err)
	}

	db := database.DB
	accountRepo := repository.NewAccountRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	stickerRepo := repository.NewStickerRepository(db)
	failedRepo := repository.NewFailedFileRepository(db)

	zl := appLogger.Logger
	accounts := services.NewAccountService(accountRepo, presence, zl.Named("accounts"))
	resolver := services.NewConversationResolver(friendRepo, conversationRepo, zl.Named("resolver"))
	messages := services.NewMessageService(messageRepo, reactionRepo, conversationRepo, resolver, zl.Named("messages"))
	stickers := services.NewStickerService(stickerRepo, stickerCache, zl.Named("stickers"))

	book := status.NewBook(status.DefaultHistorySize)
	hub := websocket.NewHub(book, messages, zl)
	go hub.Run(ctx)
	gateway := websocket.NewGateway(hub, zl)
	gateway.WatchSessions(book)

	listener := services.NewListenerService(messages, resolver, stickers, gateway, zl)
	bridge := zalo.NewBridgeClient(zalo.BridgeConfig{URL: cfg.ZaloBridgeURL}, zl.Named("bridge"))
	manager := session.NewManager(bridge, accounts, listener, book, zl.Named("sessions"), session.Options{
		ReconcileInterval: cfg.SessionReconcileEvery,
		LoginConcurrency:  cfg.SessionLoginConcurrent,
		EventConcurrency:  int64(cfg.ZaloEventConcurrency),
	})
	if err := manager.Start(ctx); err != nil {
		appLogger.Errorf("Session startup failed: %v", err)
	}
	go manager.Run(ctx)

	sender := services.NewSendService(manager, resolver, messages, failedRepo, files, sendLimiter, zl)

	cleanup := services.NewCleanupWorker(failedRepo, messageRepo, files, cfg.CleanupInterval, cfg.CleanupRetention, zl)
	cleanup.Start()
	defer cleanup.Stop()

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Socket:    handler.NewSocketHandler(hub),
		Zalo:      handler.NewZaloHandler(sender, manager, sendQuota),
		WebSocket: websocket.NewHandler(hub, cfg.SocketJWTSecret),
	}, server.Options{Limiter: adminLimiter, Health: health})

	if err := srv.Run(ctx); err != nil {
		appLogger.Errorf("Server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)
	appLogger.Infof("Shutdown complete")
}

func openFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	if cfg.StorageBackend == config.StorageS3 {
		return storage.NewClient(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
	}
	return storage.NewLocalStore(cfg.UploadDir)
}
