package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/pricing-pipeline/internal/config"
	"github.com/cuongbtq/pricing-pipeline/internal/processor"
	"github.com/cuongbtq/pricing-pipeline/internal/worker"
	"github.com/cuongbtq/pricing-pipeline/internal/worker/storage"
	"github.com/cuongbtq/pricing-pipeline/migrations"
	"github.com/cuongbtq/pricing-pipeline/shared/logger"
	"github.com/cuongbtq/pricing-pipeline/shared/postgresql"
	"github.com/cuongbtq/pricing-pipeline/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("base_dir", cfg.Worker.BaseDir),
		slog.String("gateway", cfg.Gateway.URL+cfg.Gateway.Endpoint),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder worker.RunRecorder
	if cfg.Database.Enabled {
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		recorder = storage.NewStorage(dbClient.GetDB(), appLogger.Component("run-ledger"))
	}

	gateway := processor.NewClient(processor.ClientConfig{
		BaseURL:    cfg.Gateway.URL,
		Endpoint:   cfg.Gateway.Endpoint,
		Timeout:    cfg.Gateway.Timeout,
		ModelGroup: cfg.Gateway.ModelGroup,
	}, appLogger.Component("gateway-client"))

	fileProcessor := processor.New(processor.Config{
		BaseDir:      cfg.Worker.BaseDir,
		OutputPrefix: cfg.Worker.OutputPrefix,
	}, gateway, appLogger.Component("processor"))

	rabbitClient := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))

	consumer := worker.NewConsumer(&worker.Config{
		Logger:     appLogger.Component("consumer"),
		Broker:     rabbitClient,
		Processor:  fileProcessor,
		Recorder:   recorder,
		WorkerID:   cfg.Worker.ID,
		JobTimeout: cfg.Worker.JobTimeout,
	})
	defer consumer.Close()

	// without a broker the worker cannot make progress
	if err := consumer.Connect(ctx, cfg.RabbitMQ.Connection.RetryAttempts); err != nil {
		return err
	}

	appLogger.Info("Worker service started successfully")

	err = consumer.StartConsuming(ctx)
	switch {
	case err == nil:
		appLogger.Info("Received signal, shutting down gracefully")
	case errors.Is(err, context.Canceled):
		appLogger.Info("Consumer stopped")
	default:
		appLogger.Error("Consumer stopped", slog.Any("error", err))
		return err
	}

	appLogger.Info("Worker service shutdown complete")
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

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ builds the RabbitMQ client; the connection is opened by the consumer
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) *rabbitmq.Client {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
