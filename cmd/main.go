package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/debate-arena/config"
	"github.com/Dosada05/debate-arena/db"
	"github.com/Dosada05/debate-arena/handlers"
	"github.com/Dosada05/debate-arena/live"
	"github.com/Dosada05/debate-arena/notify"
	"github.com/Dosada05/debate-arena/repositories"
	api "github.com/Dosada05/debate-arena/routes"
	"github.com/Dosada05/debate-arena/services"
	"github.com/Dosada05/debate-arena/storage"
	"github.com/go-co-op/gocron/v2"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if err := db.EnsureSchema(context.Background(), dbConn); err != nil {
		logger.Error("failed to ensure database schema", slog.Any("error", err))
		os.Exit(1)
	}

	// Хранилище текстов аргументов (опционально)
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Info("R2 storage not configured, argument texts stored by content hash")
	}

	// WebSocket Hub
	wsHub := live.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	// Приёмники событий: комнаты хаба плюс, если настроен, AMQP
	sinks := []services.Notifier{live.NewHubNotifier(wsHub)}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("failed to initialize AMQP publisher", slog.Any("error", err))
			os.Exit(1)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("AMQP publisher initialized", slog.String("exchange", cfg.AMQPExchange))
	}
	notifier := services.NewMultiNotifier(sinks...)

	// Репозитории
	ratingRepo := repositories.NewPostgresRatingRepository(dbConn)
	historyRepo := repositories.NewPostgresRatingHistoryRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	roundRepo := repositories.NewPostgresMatchRoundRepository(dbConn)
	queueRepo := repositories.NewPostgresQueueRepository(dbConn)

	// Сервисы
	clock := services.NewRealClock()
	scorer := services.NewHashScorer()
	ratingService := services.NewRatingService(ratingRepo, historyRepo, matchRepo, clock, logger)
	matchService := services.NewMatchService(matchRepo, roundRepo, clock, logger)
	roundService := services.NewRoundService(dbConn, matchRepo, roundRepo, ratingService, scorer, uploader, notifier, clock, logger)
	matchmakingService := services.NewMatchmakingService(
		dbConn, queueRepo, ratingRepo, matchRepo, matchService, notifier, clock, logger,
		cfg.MatchmakingWindow, cfg.FallbackTimeout, cfg.HeartbeatTTL,
	)
	logger.Info("services initialized")

	// Планировщик чистки очереди
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.QueueSweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := matchmakingService.SweepStale(ctx); err != nil {
				logger.Error("queue sweep failed", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		logger.Error("failed to schedule queue sweep", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()
	logger.Info("queue sweep scheduler started", slog.Duration("interval", cfg.QueueSweepInterval))

	// HTTP-обработчики и маршруты
	router := api.InitRoutes(api.Handlers{
		Queue:     handlers.NewQueueHandler(matchmakingService),
		Match:     handlers.NewMatchHandler(matchService, roundService),
		Rating:    handlers.NewRatingHandler(ratingService),
		WebSocket: handlers.NewWebSocketHandler(wsHub),
	}, cfg.JWTSecretKey)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server stopped gracefully")
		}
	}
}
