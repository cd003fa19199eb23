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

	"chaos-stories/internal/asset"
	"chaos-stories/internal/config"
	httpdelivery "chaos-stories/internal/delivery/http"
	"chaos-stories/internal/delivery/http/middleware"
	"chaos-stories/internal/delivery/websocket"
	"chaos-stories/internal/domain"
	"chaos-stories/internal/domain/content"
	"chaos-stories/internal/messaging"
	"chaos-stories/internal/metrics"
	"chaos-stories/internal/service"
	"chaos-stories/internal/transition"
	"chaos-stories/pkg/logger"
	"chaos-stories/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	// .env опционален
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err) // zap еще нет
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Service: cfg.OTelServiceName})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer lg.Sync()
	lg.Info("Starting chaos-stories server", zap.String("port", cfg.Port), zap.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	story, err := loadStory(cfg.StoryPath, lg)
	if err != nil {
		lg.Fatal("Failed to load story", zap.Error(err))
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		SampleRatio: cfg.OTelSampleRatio,
		StoryID:     story.ID,
	})
	if err != nil {
		lg.Fatal("Failed to set up tracing", zap.Error(err))
	}

	loader, err := newAssetLoader(cfg, lg)
	if err != nil {
		lg.Fatal("Failed to create asset loader", zap.Error(err))
	}

	var publisher messaging.PlaythroughPublisher = messaging.NopPublisher{}
	var rabbitConn *amqp.Connection
	if cfg.RabbitMQURL != "" {
		rabbitConn, err = messaging.Connect(ctx, cfg.RabbitMQURL, 5, 5*time.Second, lg)
		if err != nil {
			lg.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		publisher, err = messaging.NewRabbitMQPlaythroughPublisher(rabbitConn, cfg.PlaythroughEventsQueue, lg)
		if err != nil {
			lg.Fatal("Failed to create playthrough publisher", zap.Error(err))
		}
	} else {
		lg.Info("RABBITMQ_URL is empty, playthrough events are not published")
	}

	m := metrics.New()
	hub := websocket.NewManager(lg)
	go hub.Run(ctx)

	sessions := service.NewSessionService(story, loader, transition.NewAssetCache(), m, hub, publisher, cfg.SessionConfig(), lg)
	go sessions.RunJanitor(ctx, cfg.SessionJanitorInterval)

	e := echo.New()
	e.HideBanner = true
	httpdelivery.Configure(e)
	e.Use(middleware.EchoZapLogger(lg))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	httpdelivery.NewSessionHandler(sessions, hub, m.Handler(), lg).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("Shutdown signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("Echo graceful shutdown failed", zap.Error(err))
	}
	sessions.Close()
	if rabbitConn != nil {
		if err := rabbitConn.Close(); err != nil {
			lg.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("Failed to flush traces", zap.Error(err))
	}
	lg.Info("chaos-stories server stopped")
}

func loadStory(path string, lg *zap.Logger) (*domain.Story, error) {
	var (
		story    *domain.Story
		warnings []domain.Warning
		err      error
	)
	if path == "" {
		story, warnings, err = content.DepositJob()
	} else {
		story, warnings, err = domain.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		lg.Warn("Story content warning", zap.String("warning", w.String()))
	}
	lg.Info("Story loaded",
		zap.String("story_id", story.ID),
		zap.Int("scenes", len(story.Scenes)),
		zap.Int("endings", len(story.Endings)),
		zap.Int("warnings", len(warnings)),
	)
	return story, nil
}

func newAssetLoader(cfg *config.Config, lg *zap.Logger) (transition.AssetLoader, error) {
	switch {
	case cfg.AssetBaseURL != "":
		lg.Info("Preloading assets over HTTP", zap.String("base_url", cfg.AssetBaseURL))
		return asset.NewHTTPLoader(cfg.AssetBaseURL, cfg.AssetTimeout)
	case cfg.AssetDir != "":
		if _, err := os.Stat(cfg.AssetDir); err != nil {
			return nil, err
		}
		lg.Info("Preloading assets from disk", zap.String("dir", cfg.AssetDir))
		return asset.NewDirLoader(cfg.AssetDir), nil
	default:
		lg.Info("No asset source configured, preloads complete immediately")
		return asset.NopLoader{}, nil
	}
}
