package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/pricing-pipeline/internal/config"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/backend"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/cache"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/gateway"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/handler"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/router"
	"github.com/cuongbtq/pricing-pipeline/shared/logger"
	"github.com/cuongbtq/pricing-pipeline/shared/redis"
	"github.com/cuongbtq/pricing-pipeline/shared/redisai"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("INFERENCE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/inference-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateInferenceConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting inference service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("columns", cfg.Inference.Columns.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	}, appLogger.Component("redis"))
	defer redisClient.Close()

	redisaiClient := redisai.NewClient(&redisai.Config{
		Addr:           cfg.RedisAI.Addr,
		Password:       cfg.RedisAI.Password,
		DB:             cfg.RedisAI.DB,
		DialTimeout:    cfg.RedisAI.DialTimeout,
		ReadTimeout:    cfg.RedisAI.ReadTimeout,
		WriteTimeout:   cfg.RedisAI.WriteTimeout,
		ExecuteTimeout: cfg.RedisAI.ExecuteTimeout,
	}, appLogger.Component("redisai"))
	defer redisaiClient.Close()

	if err := ping(ctx, map[string]handler.Pinger{"redis": redisClient, "redisai": redisaiClient}); err != nil {
		return err
	}
	appLogger.Info("Key-value stores reachable")

	artifacts, err := initArtifacts(ctx, &cfg.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	loader := cache.NewLoader(redisClient, cfg.Inference.CacheTTL, appLogger.Component("cache"))
	featureOrder := cfg.Inference.Columns.Order()

	backends := []backend.Backend{
		backend.NewNative(artifacts, loader, featureOrder, appLogger.Logger),
		backend.NewPortable(artifacts, loader, featureOrder, appLogger.Logger),
		backend.NewTensor(backend.TensorConfig{
			Device:     cfg.Inference.Tensor.Device,
			InputName:  cfg.Inference.Tensor.InputName,
			OutputName: cfg.Inference.Tensor.OutputName,
		}, redisaiClient, artifacts, appLogger.Logger),
	}

	service := gateway.NewService(gateway.Config{
		Columns:        cfg.Inference.Columns,
		ModelGroups:    cfg.Inference.ModelGroups,
		RequestTimeout: cfg.Inference.RequestTimeout,
	}, artifacts, loader, backends, appLogger.Component("gateway"))

	if err := service.Preload(ctx); err != nil {
		return fmt.Errorf("failed to preload models: %w", err)
	}
	appLogger.Info("Models preloaded", slog.Any("groups", cfg.Inference.ModelGroups))

	pingers := map[string]handler.Pinger{
		"redis":   redisClient,
		"redisai": redisaiClient,
	}
	if p, ok := artifacts.(handler.Pinger); ok {
		pingers["artifacts"] = p
	}

	r := initRouter(cfg, appLogger.Logger, service, pingers)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("Inference service is running", slog.String("address", addr))

	select {
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// ping fails fast when a store is unreachable at startup
func ping(ctx context.Context, pingers map[string]handler.Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for name, p := range pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach %s: %w", name, err)
		}
	}
	return nil
}

func initArtifacts(ctx context.Context, cfg *config.ArtifactsConfig) (artifact.Store, error) {
	if cfg.Backend == config.ArtifactsS3 {
		store, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return artifact.NewLocalStore(cfg.Dir), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, predictor handler.Predictor, pingers map[string]handler.Pinger) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Predictor: predictor,
		Pingers:   pingers,
	}, router.Limits{
		RequestsPerSecond: cfg.Inference.RateLimit.RequestsPerSecond,
		Burst:             cfg.Inference.RateLimit.Burst,
	})
}
