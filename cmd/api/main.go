package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"medichat/internal/api"
	"medichat/internal/cache"
	"medichat/internal/config"
	"medichat/internal/db"
	apihttp "medichat/internal/http"
	"medichat/internal/repository"
	"medichat/internal/service"
	"medichat/internal/stream"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// La cache de binarios escoge backend segun configuracion: Postgres,
	// Redis o memoria.
	blobs := cache.NewMemoryBlobStore()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		blobs = repository.NewPgBlobRepository(pool)
	} else if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory blob cache", zap.Error(err))
		} else {
			blobs = cache.NewRedisBlobStore(redisClient)
		}
		cancel()
	}

	client := api.NewHTTPClient(cfg.BackendBaseURL, cfg.BackendAPIKey)
	decoder := stream.NewDecoder(time.Duration(cfg.StreamDelayMs) * time.Millisecond)
	chats := service.NewChatRegistry()
	streams := service.NewStreamController(client, decoder, logger)
	pipeline := service.NewAttachmentPipeline(client, blobs, streams, chats, logger)
	conv := service.NewConversationOrchestrator(client, blobs, streams, pipeline, chats, logger)

	chatHandler := apihttp.NewChatHandler(logger, conv)
	router := apihttp.NewRouter(logger, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
