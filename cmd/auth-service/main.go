// cmd/auth-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-platform/internal/auth"
	"notification-platform/internal/common/broker"
	"notification-platform/internal/common/config"
	"notification-platform/internal/common/database"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/retry"
	"notification-platform/internal/notification/api"
	"notification-platform/internal/notification/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewService(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, "auth-service")
	if err != nil {
		zap.NewExample().Fatal("logger init failed", zap.Error(err))
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting auth service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retry.WithBackoff(ctx, func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(pg.DB); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
	}

	// --- Init Redis with retry ---
	var revocations auth.RevocationStore
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err == nil {
		err = retry.WithBackoff(ctx, func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection")
	}
	if err != nil {
		zapLog.Warn("redis unavailable, logout will not revoke tokens", zap.Error(err))
	} else {
		defer rdb.Close()
		revocations = auth.NewRedisRevocationStore(rdb.Client)
	}

	// --- Event producer ---
	var publisher auth.EventPublisher
	var pub broker.Publisher
	err = retry.WithBackoff(ctx, func() error {
		var err error
		pub, err = broker.NewPublisher(cfg.Broker, log)
		return err
	}, 10, 2*time.Second, log, "Broker publisher")
	if err != nil {
		zapLog.Warn("broker unavailable, auth events will not be published", zap.Error(err))
	} else {
		producer := events.NewProducer(pub)
		defer producer.Close()
		publisher = producer
	}

	tokens, err := auth.NewTokens(auth.TokenSettings{
		Secret:      cfg.Auth.JWTSecret,
		AccessTTL:   config.GetDuration(cfg.Auth.AccessTokenTTL),
		RefreshTTL:  config.GetDuration(cfg.Auth.RefreshTokenTTL),
		RememberTTL: config.GetDuration(cfg.Auth.RememberMeTTL),
	})
	if err != nil {
		zapLog.Fatal("token signer init failed", zap.Error(err))
	}

	service := auth.NewService(auth.NewUserRepository(pg.DB), tokens, revocations, publisher, auth.Settings{
		BcryptCost:       cfg.Auth.BcryptCost,
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  config.GetDuration(cfg.Auth.LockoutDuration),
		VerificationTTL:  config.GetDuration(cfg.Auth.VerificationTokenTTL),
		ResetTTL:         config.GetDuration(cfg.Auth.ResetTokenTTL),
		FrontendURL:      cfg.Auth.FrontendURL,
	}, log)

	router := gin.New()
	router.Use(api.Recovery(log), api.RequestLogger(log))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"service":   "auth-service",
			"timestamp": time.Now().UTC(),
			"database":  pg.State(c.Request.Context()),
			"redis":     rdb.State(c.Request.Context()),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	auth.NewHandler(service, log).Mount(router)

	addr := fmt.Sprintf(":%d", cfg.Auth.Port)
	server := api.NewServer(addr, router,
		config.GetDuration(cfg.Server.ReadTimeout), config.GetDuration(cfg.Server.WriteTimeout), log)

	zapLog.Info("Auth service started", zap.String("addr", addr))
	if err := server.Run(ctx); err != nil {
		zapLog.Error("server stopped with error", zap.Error(err))
	}
	zapLog.Info("Auth service stopped")
}
