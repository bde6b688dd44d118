package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"devotional-server/internal/api"
	"devotional-server/internal/config"
	"devotional-server/internal/connectivity"
	"devotional-server/internal/database"
	"devotional-server/internal/delivery"
	"devotional-server/internal/generation"
	"devotional-server/internal/logger"
	"devotional-server/internal/messaging"
	"devotional-server/internal/session"
	"devotional-server/internal/ws"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	zapLogger.Info("Starting devotional generation service",
		zap.String("httpPort", cfg.HTTPPort),
		zap.String("aiClientType", cfg.AIClientType),
	)

	// --- Metrics server on a side port ---
	go startMetricsServer(cfg.MetricsPort, zapLogger)

	// --- PostgreSQL ---
	zapLogger.Info("Connecting to PostgreSQL", zap.String("dsn", cfg.MaskedDSN()))
	dbPool, err := setupDatabase(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := database.ApplyMigrations(dbPool); err != nil {
		zapLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	zapLogger.Info("Database ready")

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cancel()
	}
	defer redisClient.Close()
	zapLogger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	// --- RabbitMQ ---
	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zapLogger.Info("Connected to RabbitMQ")

	publisher, err := messaging.NewRabbitPushPublisher(mqConn, cfg.NotificationsQueueName, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create push publisher", zap.Error(err))
	}
	defer publisher.Close()

	// --- Core wiring ---
	aiClient, err := generation.NewAIClient(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create AI client", zap.Error(err))
	}

	devotionalStore := database.NewPgDevotionalRepository(dbPool, zapLogger)
	journalStore := database.NewPgJournalRepository(dbPool, zapLogger)
	sessionRepo := database.NewRedisSessionRepository(redisClient, zapLogger)

	tracker := session.NewTracker(sessionRepo, zapLogger)
	generator := generation.NewClient(aiClient, devotionalStore, cfg, zapLogger)
	registry := generation.NewActiveRegistry()

	wsManager := ws.NewManager(cfg.UserIDHeader, zapLogger)
	wsManager.Start()

	controller := delivery.NewController(generator, registry, devotionalStore, tracker, wsManager, publisher, zapLogger)

	monitor := connectivity.NewMonitor(cfg.ConnectivityProbeURL, cfg.ConnectivityProbeInterval, zapLogger)
	scheduler := delivery.NewScheduler(controller, devotionalStore, monitor, delivery.NewRealClock(), cfg, zapLogger)
	controller.SetRetryEvaluator(scheduler)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go monitor.Run(rootCtx)
	go scheduler.Run(rootCtx)

	// --- HTTP server (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(api.GinZapLogger(zapLogger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", cfg.UserIDHeader}
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	apiHandler := api.NewHandler(controller, scheduler, devotionalStore, journalStore, tracker, monitor, wsManager.Handler(), zapLogger)
	apiHandler.RegisterRoutes(router, cfg.UserIDHeader)

	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown error", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

// startMetricsServer поднимает /metrics и /health на отдельном порту.
func startMetricsServer(port string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	logger.Info("Metrics server listening", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("Metrics server error", zap.Error(err))
	}
}

// setupDatabase подключается к PostgreSQL с повторными попытками: при
// старте в docker-compose база может подниматься дольше сервиса.
func setupDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	const maxRetries = 50
	const retryDelay = 3 * time.Second

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				cancel()
				return pool, nil
			}
			pool.Close()
		}
		cancel()
		logger.Warn("PostgreSQL not ready, retrying",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// connectRabbitMQ подключается к RabbitMQ с повторными попытками.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 5
	const retryDelay = 5 * time.Second

	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("RabbitMQ not ready, retrying",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
