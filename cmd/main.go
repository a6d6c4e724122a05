package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/avisly/playengine/api/playv1/playv1connect"
	"github.com/avisly/playengine/internal/analytics"
	"github.com/avisly/playengine/internal/auth"
	"github.com/avisly/playengine/internal/config"
	"github.com/avisly/playengine/internal/database"
	"github.com/avisly/playengine/internal/fraud"
	"github.com/avisly/playengine/internal/logging"
	"github.com/avisly/playengine/internal/middleware"
	"github.com/avisly/playengine/internal/repository"
	"github.com/avisly/playengine/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	logger.Info().Str("environment", cfg.App.Environment).Msg("Starting play engine")

	// Initialize storage
	var (
		store repository.Store
		db    *database.DB
	)
	switch cfg.App.Storage {
	case "memory":
		if cfg.App.IsProduction() {
			logger.Fatal().Msg("In-memory storage is not allowed in production")
		}
		mem := repository.NewMemoryStore()
		repository.SeedDemo(mem)
		store = mem
		logger.Warn().
			Str("restaurant_id", repository.DemoRestaurantID.String()).
			Str("campaign_id", repository.DemoCampaignID.String()).
			Msg("Using in-memory storage with demo data")
	default:
		db, err = database.NewDB(ctx, cfg, logging.WithComponent(logger, "database"))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Error closing database connections")
			}
		}()
		store = repository.NewPostgresStore(db.Postgres)
	}

	// Fraud gate
	bypass, err := fraud.NewBypassPolicy(cfg.Play.FraudBypassNetworks, cfg.Play.OperatorIDs)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid fraud bypass configuration")
	}
	var gate fraud.Gate = fraud.NewWindowGate(store, bypass, cfg.Play.FraudWindow, logger)
	if cfg.Play.FraudStrict {
		redisClient := connectRedis(ctx, cfg, db, logger)
		if db == nil {
			defer redisClient.Close()
		}
		gate = fraud.NewReservingGate(gate, bypass, fraud.NewRedisReserver(redisClient, "fraud:"), cfg.Play.FraudWindow, logger)
		logger.Info().Msg("Strict fraud gate enabled")
	}

	// Analytics sinks
	sinks := []analytics.Sink{analytics.NewStoreSink(store)}
	if cfg.Kafka.KafkaEnabled() {
		kafkaSink := analytics.NewKafkaSink(analytics.KafkaConfig{
			Brokers:   cfg.Kafka.Brokers,
			Topic:     cfg.Kafka.Topic,
			WorkerNum: cfg.Kafka.WorkerNum,
			Logger:    logger,
		})
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka analytics stream enabled")
	}
	emitter := analytics.NewRecorder(logger, sinks...)

	// Create play service
	playService := service.NewPlayService(store, gate, emitter, service.Options{
		CouponTTL:            cfg.Play.CouponTTL,
		CodeAttempts:         cfg.Play.CouponCodeAttempts,
		MaxFeedbackLength:    cfg.Play.MaxFeedbackLength,
		PositiveRatingCutoff: cfg.Play.PositiveRatingCutoff,
	}, logger)
	playServer := service.NewPlayServer(playService, logger)

	// Interceptors
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	common := []connect.Interceptor{
		middleware.Recovery(logger),
		middleware.Logging(logging.WithComponent(logger, "rpc")),
	}
	if cfg.RateLimit.Enabled {
		trustedProxies, err := fraud.ParsePrefixes(cfg.RateLimit.TrustedProxies)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid trusted proxy configuration")
		}
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).
			WithTrustedProxies(trustedProxies).
			WithMaxVisitors(cfg.RateLimit.MaxVisitors)
		common = append(common, limiter.Interceptor())
	}
	playInterceptors := append(append([]connect.Interceptor{}, common...), middleware.Auth(verifier, false))
	staffInterceptors := append(append([]connect.Interceptor{}, common...), middleware.Auth(verifier, true))

	// Create HTTP mux
	mux := http.NewServeMux()

	path, handler := playv1connect.NewPlayServiceHandler(playServer, connect.WithInterceptors(playInterceptors...))
	mux.Handle(path, handler)
	path, handler = playv1connect.NewStaffServiceHandler(playServer, connect.WithInterceptors(staffInterceptors...))
	mux.Handle(path, handler)

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"playengine","hostname":"%s"}`, hostname)
	})

	// Add storage health check endpoint
	mux.HandleFunc("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"storage unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","storage":"%s"}`, cfg.App.Storage)
	})

	// Add Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(mux, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logger.Info().Msg("Server exited gracefully")
}

// connectRedis opens Redis through db when Postgres is in use, so both
// close together
func connectRedis(ctx context.Context, cfg *config.Config, db *database.DB, logger zerolog.Logger) *redis.Client {
	if db != nil {
		client, err := db.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		return client
	}
	client, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Successfully connected to Redis")
	return client
}
