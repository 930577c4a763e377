package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrinova/agrinova/internal/anchor"
	"github.com/agrinova/agrinova/internal/events/kafka"
	"github.com/agrinova/agrinova/internal/infra/postgres"
	infraredis "github.com/agrinova/agrinova/internal/infra/redis"
	"github.com/agrinova/agrinova/internal/ledger"
	"github.com/agrinova/agrinova/internal/platform/user"
	"github.com/agrinova/agrinova/internal/transport/httpapi"
	"github.com/agrinova/agrinova/internal/transport/httpapi/handler"
	"github.com/agrinova/agrinova/internal/transport/httpapi/middleware"
	"github.com/agrinova/agrinova/pkg/config"
	"github.com/agrinova/agrinova/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting AgriNova ledger API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for report caching
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established")

	// Initialize the anchoring signer. An empty key is a supported
	// configuration: the ledger records commitments without signatures.
	signer, err := anchor.NewSigner(cfg.SigningKey)
	if err != nil {
		log.Error("Invalid signing key", "error", err)
		os.Exit(1)
	}
	if signer.Available() {
		log.Info("Anchoring enabled", "address", signer.Address())
	} else {
		log.Warn("LEDGER_SIGNING_KEY not configured, running in simulated mode")
	}

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db.Pool)
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)

	// Optional collaborators
	reportCache := infraredis.NewReportCacheWithTTL(redisClient, cfg.ReportCacheTTL, log)

	opts := []ledger.Option{ledger.WithReportCache(reportCache)}
	var publisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		opts = append(opts, ledger.WithEventPublisher(publisher))
		log.Info("Kafka publisher initialized", "brokers", cfg.KafkaBrokers)
	} else {
		log.Warn("KAFKA_BROKERS not configured, event publishing disabled")
	}

	// Initialize services
	ledgerSvc := ledger.NewService(ledgerRepo, signer, log, opts...)
	userSvc := user.NewService(userRepo, ledgerSvc, log)
	jwtSvc := middleware.NewJWTService(cfg.JWTSecret)

	// Initialize HTTP handlers
	authHandler := handler.NewAuthHandler(userSvc, jwtSvc)
	transactionHandler := handler.NewTransactionHandler(ledgerSvc)
	healthHandler := handler.NewHealthHandler(db, signer.Available())

	// Create JWT middleware
	jwtMiddleware := middleware.JWTMiddleware(jwtSvc)

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		AuthHandler:        authHandler,
		TransactionHandler: transactionHandler,
		HealthHandler:      healthHandler,
		JWTMiddleware:      jwtMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
