// cmd/notification-service/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"notification-platform/internal/common/broker"
	"notification-platform/internal/common/config"
	"notification-platform/internal/common/database"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/observability"
	"notification-platform/internal/common/retry"
	"notification-platform/internal/notification/api"
	"notification-platform/internal/notification/dispatch"
	"notification-platform/internal/notification/events"
	"notification-platform/internal/notification/providers"
	"notification-platform/internal/notification/records"
	"notification-platform/internal/notification/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewService(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, "notification-service")
	if err != nil {
		zap.NewExample().Fatal("logger init failed", zap.Error(err))
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification service...", zap.String("version", cfg.App.Version))

	obs, err := observability.New("notification-service")
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown()

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
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(pg.DB); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
	}

	templateStore := templates.NewStore(pg.DB)
	seeded, err := templateStore.SeedDefaults(ctx)
	if err != nil {
		zapLog.Warn("default template seeding failed", zap.Error(err))
	} else if len(seeded) > 0 {
		zapLog.Info("Seeded default templates", zap.Strings("templates", seeded))
	}
	recordStore := records.NewStore(pg.DB)

	// --- Providers ---
	emailProvider, err := providers.NewEmailProvider(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("email provider init failed", zap.Error(err))
	}
	smsProvider, err := providers.NewSMSProvider(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("sms provider init failed", zap.Error(err))
	}
	zapLog.Info("Providers ready", zap.String("email", emailProvider.Name()), zap.String("sms", smsProvider.Name()))

	emailService := dispatch.NewEmailService(emailProvider, recordStore, dispatch.EmailSettings{
		From:       cfg.Email.From(),
		BatchSize:  cfg.Dispatch.EmailBatchSize,
		BatchDelay: cfg.Dispatch.EmailDelay(),
	}, log, obs)
	smsService := dispatch.NewSMSService(smsProvider, recordStore, dispatch.SMSSettings{
		BatchSize:  cfg.Dispatch.SMSBatchSize,
		BatchDelay: cfg.Dispatch.SMSDelay(),
	}, log, obs)
	notificationService := dispatch.NewNotificationService(emailService, smsService, templateStore, recordStore, log)

	// --- Event consumer ---
	var dedup events.Deduplicator
	if cfg.Events.DedupEnabled {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err == nil {
			err = retry.WithBackoff(ctx, func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection")
		}
		if err != nil {
			zapLog.Warn("redis unavailable, event dedup disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			dedup = events.NewRedisDeduplicator(rdb.Client, config.GetDuration(cfg.Events.DedupTTL))
			zapLog.Info("Redis connected successfully")
		}
	}

	subscriber, err := broker.NewSubscriber(cfg.Broker, log)
	if err != nil {
		zapLog.Fatal("broker subscriber init failed", zap.Error(err))
	}
	handlers := events.NewHandlers(emailService, smsService, templateStore, events.HandlerSettings{
		FrontendURL:        cfg.Events.FrontendURL,
		SMSAmountThreshold: cfg.Events.SMSAmountThreshold,
	}, log)
	consumer := events.NewConsumer(subscriber, handlers, dedup, obs, log)

	// The API stays up while the broker is unreachable; health reports it.
	// Run reconnects after connect failures and after the consume loop dies.
	go consumer.Run(ctx, events.DefaultRestartDelay)

	var scheduler *dispatch.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = dispatch.NewScheduler(recordStore, emailService, smsService, cfg.Scheduler.Spec, cfg.Scheduler.BatchLimit, log)
		if err := scheduler.Start(ctx); err != nil {
			zapLog.Fatal("scheduler start failed", zap.Error(err))
		}
	}

	// --- HTTP API ---
	router := api.NewRouter(api.Dependencies{
		ServiceName:   "notification-service",
		Email:         emailService,
		SMS:           smsService,
		Notifications: notificationService,
		Templates:     templateStore,
		Database:      pg,
		Consumer:      func() string { return consumer.State().String() },
		Logger:        log,
	})
	server := api.NewServer(cfg.Server.Addr(), router,
		config.GetDuration(cfg.Server.ReadTimeout), config.GetDuration(cfg.Server.WriteTimeout), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	zapLog.Info("Notification service started", zap.String("addr", cfg.Server.Addr()))
	if err := g.Wait(); err != nil {
		zapLog.Error("server stopped with error", zap.Error(err))
	}

	zapLog.Info("Shutting down...")
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := consumer.Stop(); err != nil {
		zapLog.Warn("consumer stop failed", zap.Error(err))
	}
	zapLog.Info("Notification service stopped")
}
