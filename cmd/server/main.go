// Package main runs the live polling server: HTTP with WebSocket
// upgrade, graceful shutdown, and an optional poll archive database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/live-polling/backend/config"
	"github.com/live-polling/backend/internal/archive"
	"github.com/live-polling/backend/internal/middleware"
	"github.com/live-polling/backend/internal/realtime"
	"github.com/live-polling/backend/internal/rooms"
	"github.com/live-polling/backend/pkg/database"
	"github.com/live-polling/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// The poll archive is optional: without a database the engine is
	// purely in-memory and completed polls die with their room.
	var archiver rooms.Archiver
	if cfg.Archive.Enabled() {
		pool, err := database.NewPostgresPool(ctx, cfg.Archive.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("archive database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		archiver = archive.NewRepository(pool)
		logger.Info("poll archive enabled")
	}

	hub := realtime.NewHub(logger)
	service := rooms.NewService(logger, rooms.Config{
		TeacherGraceTTL: cfg.Session.TeacherGraceTTL,
	}, hub, archiver)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "connections": hub.ClientCount()})
	})

	// Room probe, usable by clients before joining.
	router.GET("/rooms/:id", func(c *gin.Context) {
		status, err := service.RoomStatus(c.Param("id"))
		if err != nil {
			response.NotFound(c, "room not found")
			return
		}
		response.OK(c, status)
	})

	// WebSocket: all poll, chat and roster traffic.
	router.GET("/ws", realtime.ServeWs(hub, service, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
