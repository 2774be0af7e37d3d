package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/database"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/realtime"
	"github.com/noah-isme/storefront-api/internal/repository"
	"github.com/noah-isme/storefront-api/internal/router"
	"github.com/noah-isme/storefront-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	noticeRepo := repository.NewNoticeRepository(db, cfg.NoticeRetention)
	expiring := map[string]repository.ExpiringStore{"notices": noticeRepo}

	var chatRepo repository.ChatRepository
	switch cfg.ChatStore {
	case config.ChatStoreRedis:
		chatRepo = repository.NewRedisChatRepository(redisClient, cfg.RealtimeChannel, cfg.ChatRetention)
	default:
		chatRepo = repository.NewChatRepository(db, cfg.ChatRetention)
	}
	expiring["chat_messages"] = chatRepo

	reaper := repository.NewExpiryReaper(cfg.StoreSweepInterval, logger, expiring)
	go reaper.Run(ctx)

	var buses []realtime.Bus
	if redisClient != nil {
		buses = append(buses, realtime.NewRedisBus(redisClient, cfg.RealtimeChannel, logger))
	}
	if natsConn != nil {
		buses = append(buses, realtime.NewNATSBus(natsConn, cfg.RealtimeChannel, logger))
	}

	registry := realtime.NewRegistry(logger)
	broadcaster := realtime.NewBroadcaster(registry, logger, buses...)
	broadcaster.Start(ctx)

	payloads, err := realtime.NewPayloadValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile realtime payload schemas")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	verifier := middleware.NewTokenVerifier(cfg.JWTSecret)

	chatService := service.NewChatService(chatRepo, broadcaster, validate, logger, service.ChatOptions{
		PageSize:      cfg.ChatPageSize,
		TypingTimeout: cfg.TypingTimeout,
	})
	defer chatService.Close()

	noticeService := service.NewNoticeService(noticeRepo, service.NewNoticeFanout(broadcaster, logger), redisClient, validate, logger)
	gatewayService := service.NewGatewayService(registry, chatService, payloads, logger, service.GatewayOptions{
		SendBuffer:   cfg.RealtimeSendBuffer,
		PingInterval: cfg.RealtimePingInterval,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.AllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		RealtimeHandler: handler.NewRealtimeHandler(gatewayService, verifier, logger),
		ChatHandler:     handler.NewChatHandler(chatService, logger),
		NoticeHandler:   handler.NewNoticeHandler(noticeService, logger),
		Registry:        registry,
		JWTMiddleware:   middleware.JWTProtected(verifier),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("chat_store", cfg.ChatStore).Int("buses", len(buses)).Msg("storefront api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, registry, cancel, logger)
}

func waitForShutdown(app *fiber.App, registry *realtime.Registry, cancel context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	registry.Close()
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
