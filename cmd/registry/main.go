package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"

	"devreg/internal/auth"
	"devreg/internal/device"
	"devreg/internal/events"
	"devreg/internal/handler"
	"devreg/internal/middleware"
	"devreg/internal/notification"
	"devreg/internal/observability"
	"devreg/internal/refdata"
	"devreg/internal/registration"
	"devreg/internal/repository/postgres"
	"devreg/internal/scheduler"
	"devreg/internal/transfer"
	"devreg/internal/wallet"
	"devreg/pkg/cache"
	"devreg/pkg/config"
	"devreg/pkg/logger"
	"devreg/pkg/mailer"
	"devreg/pkg/validator"
)

const expiryBatchSize = 100

func main() {
	cfg := config.Load()
	log := logger.New("registry")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Registry Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	telemetry, err := observability.Initialize(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", map[string]interface{}{"error": err.Error()})
	}

	// Database connection
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()
	log.Info("Database connected", nil)

	if cfg.Server.AutoMigrate {
		if err := postgres.MigrateUp(db.DB); err != nil {
			log.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
		}
		log.Info("Migrations applied", nil)
	}

	// Redis connection
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	redisCache := cache.NewRedisCache(redisClient, "devreg:")
	defer redisCache.Close()
	log.Info("Redis connected", nil)

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	agentRepo := postgres.NewAgentRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	registrationRepo := postgres.NewRegistrationRepository(db)
	transferRepo := postgres.NewTransferRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Live events go to websocket dashboards and the event counter.
	hub := events.NewHub(log, cfg.Server.AllowedOrigins)
	go hub.Run(ctx)

	registryMetrics, err := observability.NewRegistryMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatal("Failed to create registry metrics", map[string]interface{}{"error": err.Error()})
	}
	publisher := events.Fanout{hub, registryMetrics}

	var sender mailer.Sender
	if cfg.Email.Enabled {
		sender = mailer.New(mailer.Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.SMTPFrom,
			UseTLS:   cfg.Email.SMTPUseTLS,
		})
	}

	// Services
	notifier := notification.NewService(log, userRepo, sender, notificationRepo)
	authService := auth.NewService(userRepo, cfg.JWT.Secret, 24*time.Hour)
	deviceService := device.NewService(deviceRepo, notifier, publisher, log)
	transferService := transfer.NewService(transferRepo, deviceRepo, userRepo, notifier, publisher, log, cfg.Registry.TransferTTL)
	registrationService := registration.NewService(
		registrationRepo,
		deviceRepo,
		agentRepo,
		authService,
		notifier,
		publisher,
		cfg.Registry,
		log,
	)
	walletService := wallet.NewService(agentRepo, cfg.Registry.Currency, cfg.Registry.FreeRegistrationThreshold, log)

	reference := refdata.NewService(cfg.Registry, redisCache, deviceRepo, log)
	if err := reference.Hydrate(ctx); err != nil {
		log.Warn("Reference data not hydrated, serving defaults", map[string]interface{}{"error": err.Error()})
	}

	// Background jobs
	jobs := scheduler.NewScheduler(log)
	jobs.Schedule(scheduler.TransferExpiryJob(transferService, cfg.Registry.ExpirySweepInterval, expiryBatchSize, log))
	jobs.Schedule(scheduler.Job{
		Name:     "reference-refresh",
		Interval: cfg.Registry.ReferenceCacheTTL,
		Run: func(ctx context.Context) error {
			return <-reference.Refresh(ctx)
		},
	})
	jobs.Start()

	// Handlers
	val := validator.New()
	httpMetrics, err := observability.NewHTTPMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", map[string]interface{}{"error": err.Error()})
	}

	deps := []handler.Dependency{
		{
			ID:            "database",
			Name:          "PostgreSQL Database",
			Description:   "Primary data store",
			Check:         db.PingContext,
			DegradedAfter: 200 * time.Millisecond,
		},
		{
			ID:          "redis",
			Name:        "Redis Cache",
			Description: "Rate limiting, idempotency and reference data",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
			DegradedAfter: 50 * time.Millisecond,
		},
	}

	limiter := middleware.NewRateLimiter(redisCache, cfg.Server.RateLimit, cfg.Server.RateWindow, log)
	idempotency := middleware.NewIdempotencyMiddleware(redisCache, cfg.Server.IdempotencyTTL, cfg.Server.RequireIdempotency, log)

	r := handler.NewRouter(handler.Handlers{
		Devices:       handler.NewDeviceHandler(deviceService, val, log),
		Registrations: handler.NewRegistrationHandler(registrationService, deviceService, val, log),
		Transfers:     handler.NewTransferHandler(transferService, val, log),
		Wallet:        handler.NewWalletHandler(walletService, val, log),
		System:        handler.NewSystemHandler(deps, notificationRepo, reference, log),
		Events:        hub.ServeWS,
	}, handler.RouterOptions{
		Auth: middleware.NewAuthMiddleware(cfg.JWT.Secret),
		Global: []mux.MiddlewareFunc{
			middleware.CORS(cfg.Server.AllowedOrigins),
			middleware.SecurityHeaders,
			middleware.Recovery(log),
			middleware.CorrelationID,
			observability.TracingMiddleware(otel.GetTracerProvider()),
			observability.MetricsMiddleware(httpMetrics),
			middleware.NewLoggingMiddleware(log).Log,
		},
		Public:    []mux.MiddlewareFunc{limiter.Limit},
		Protected: []mux.MiddlewareFunc{limiter.Limit, idempotency.Require},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Registry service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down registry service...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Registry service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	jobs.Stop()
	stop()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Registry service stopped gracefully", nil)
}
