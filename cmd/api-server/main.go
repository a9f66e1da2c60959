package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"markethub/database"
	"markethub/internal/api/handler"
	"markethub/internal/api/middleware"
	"markethub/internal/api/repository"
	"markethub/internal/api/service"
	"markethub/internal/config"
	"markethub/internal/notify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.Connect(cfg, logger)
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}
	defer database.Close(db)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Notification engine: registry + caches + dispatcher behind the facade
	registry := notify.NewRegistry(cfg.HeartbeatInterval, cfg.StreamIdleTimeout, logger)

	listCache := service.NewListCache(cfg.ListCacheSize, cfg.ListCacheTTL)
	countCache := service.NewCountCache(cfg.CountCacheSize, cfg.CountCacheTTL)
	if cfg.RedisAddr != "" {
		rdb, err := notify.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("could not connect to redis: %v", err)
		}
		defer rdb.Close()
		listCache = service.NewRedisListCache(rdb, cfg.ListCacheTTL)
		countCache = service.NewRedisCountCache(rdb, cfg.CountCacheTTL)
	}

	notificationSvc := service.NewNotificationService(
		notificationRepo, registry, listCache, countCache,
		cfg.NotifyWorkers, cfg.NotifyQueueSize, logger,
	)
	defer notificationSvc.Close()

	authSvc := service.NewAuthService(userRepo, refreshTokenRepo, cfg)

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := handler.NewAuthHandler(authSvc)
	authGroup := r.Group("/api/auth")
	authGroup.Use(middleware.RateLimit(rate.Limit(5), 10))
	authHandler.RegisterRoutes(authGroup)

	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	notifGroup := r.Group("/api/notifications")
	notifGroup.Use(middleware.AuthMiddleware(authSvc))
	notificationHandler.RegisterRoutes(notifGroup)

	adminGroup := r.Group("/api/admin/notifications")
	adminGroup.Use(middleware.AuthMiddleware(authSvc), middleware.RequireRole("admin"))
	notificationHandler.RegisterAdminRoutes(adminGroup)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server_starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err.Error())
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
