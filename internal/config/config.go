package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/dto"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/schema"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Artifact store backends
const (
	ArtifactsLocal = "local"
	ArtifactsS3    = "s3"
)

// Config represents the complete application configuration. Each service
// reads the sections it needs and validates them with its Validate method.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Worker    WorkerConfig    `yaml:"worker"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Inference InferenceConfig `yaml:"inference"`
	Redis     RedisConfig     `yaml:"redis"`
	RedisAI   RedisAIConfig   `yaml:"redisai"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Database  DatabaseConfig  `yaml:"database"`
	Upload    UploadConfig    `yaml:"upload"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LOG_LEVEL"`
	Format       string `yaml:"format" env:"LOG_FORMAT"`
	Output       string `yaml:"output" env:"LOG_OUTPUT"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" env:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" env:"RABBITMQ_PORT"`
	User       string           `yaml:"user" env:"RABBITMQ_USER"`
	Password   string           `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost" env:"RABBITMQ_VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange straight to the queue.
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name" env:"RABBITMQ_QUEUE"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	// RetryAttempts is the total number of connect attempts
	RetryAttempts     int           `yaml:"retry_attempts" env:"RABBITMQ_RETRY_ATTEMPTS"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID           string        `yaml:"id" env:"WORKER_ID"`
	BaseDir      string        `yaml:"base_dir" env:"FILE_PATH"`
	OutputPrefix string        `yaml:"output_prefix"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
}

// GatewayConfig is how the worker and the upload service reach the inference gateway
type GatewayConfig struct {
	URL      string        `yaml:"url" env:"ML_URL"`
	Endpoint string        `yaml:"endpoint" env:"ML_ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout"`
	// ModelGroup is sent for rows that carry no model_group column
	ModelGroup string `yaml:"model_group" env:"ML_MODEL_GROUP"`
}

// InferenceConfig holds the inference gateway settings
type InferenceConfig struct {
	Columns        schema.Columns  `yaml:"columns"`
	ModelGroups    []string        `yaml:"model_groups" env:"MODEL_GROUPS" envSeparator:","`
	CacheTTL       time.Duration   `yaml:"cache_ttl"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Tensor         TensorConfig    `yaml:"tensor"`
}

// RateLimitConfig bounds the tensor endpoint. Burst adds to the bound after
// idle time: a full bucket admits Burst requests at once before the steady rate.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TensorConfig describes how ONNX models are registered in RedisAI
type TensorConfig struct {
	Device     string `yaml:"device"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
}

// RedisConfig holds the key-value cache connection
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// RedisAIConfig holds the tensor store connection
type RedisAIConfig struct {
	Addr           string        `yaml:"addr" env:"REDISAI_ADDR"`
	Password       string        `yaml:"password" env:"REDISAI_PASSWORD"`
	DB             int           `yaml:"db"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
}

// ArtifactsConfig selects where models and encoders are read from
type ArtifactsConfig struct {
	Backend string   `yaml:"backend" env:"ARTIFACTS_BACKEND"`
	Dir     string   `yaml:"dir" env:"ARTIFACTS_DIR"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds the artifact bucket settings
type S3Config struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region          string `yaml:"region" env:"AWS_REGION"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the run ledger
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" env:"DB_ENABLED"`
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	Database        string        `yaml:"database" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// UploadConfig holds upload service settings
type UploadConfig struct {
	Dir            string        `yaml:"dir" env:"FILE_PATH"`
	MaxFileSize    int64         `yaml:"max_file_size"`
	AllowedExts    []string      `yaml:"allowed_extensions"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Load reads the configuration file, overlays environment variables and
// fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")
	setDefault(&c.Logging.Output, "stdout")

	setDefault(&c.Server.ReadTimeout, 15*time.Second)
	setDefault(&c.Server.WriteTimeout, 30*time.Second)
	setDefault(&c.Server.IdleTimeout, 60*time.Second)
	setDefault(&c.Server.ShutdownTimeout, 30*time.Second)

	setDefault(&c.RabbitMQ.Port, 5672)
	setDefault(&c.RabbitMQ.Queue.Name, "file_queue")
	setDefault(&c.RabbitMQ.Connection.RetryAttempts, 5)
	setDefault(&c.RabbitMQ.Connection.RetryInterval, 2*time.Second)
	setDefault(&c.RabbitMQ.Connection.ConnectionTimeout, 10*time.Second)
	setDefault(&c.RabbitMQ.Publish.RetryInterval, 500*time.Millisecond)
	setDefault(&c.RabbitMQ.Publish.BackoffMultiplier, 2.0)

	setDefault(&c.Worker.OutputPrefix, "processed_")
	setDefault(&c.Worker.JobTimeout, 30*time.Minute)

	setDefault(&c.Gateway.Endpoint, "/api/v1/predict/onnx")
	setDefault(&c.Gateway.Timeout, 10*time.Second)
	setDefault(&c.Gateway.ModelGroup, "A")

	setDefault(&c.Inference.CacheTTL, 24*time.Hour)
	setDefault(&c.Inference.RequestTimeout, 5*time.Second)
	setDefault(&c.Inference.RateLimit.RequestsPerSecond, 20.0)
	setDefault(&c.Inference.RateLimit.Burst, 1)
	setDefault(&c.Inference.Tensor.Device, "CPU")
	setDefault(&c.Inference.Tensor.InputName, "float_input")
	setDefault(&c.Inference.Tensor.OutputName, "variable")

	setDefault(&c.Artifacts.Backend, ArtifactsLocal)

	setDefault(&c.Database.Port, 5432)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.MaxOpenConns, 10)
	setDefault(&c.Database.MaxIdleConns, 5)
	setDefault(&c.Database.ConnMaxLifetime, 30*time.Minute)

	setDefault(&c.Upload.MaxFileSize, int64(32<<20))
	setDefault(&c.Upload.PublishTimeout, 10*time.Second)
	if len(c.Upload.AllowedExts) == 0 {
		c.Upload.AllowedExts = []string{".xlsx", ".xlsm", ".csv"}
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// ValidateWorkerConfig checks the sections the worker service reads
func (c *Config) ValidateWorkerConfig() error {
	if err := c.RabbitMQ.validate(); err != nil {
		return err
	}

	if c.RabbitMQ.Connection.RetryAttempts < 1 {
		return fmt.Errorf("rabbitmq connection retry_attempts must be at least 1")
	}

	if c.RabbitMQ.Connection.RetryInterval <= 0 {
		return fmt.Errorf("rabbitmq connection retry_interval must be greater than 0")
	}

	if c.Worker.BaseDir == "" {
		return fmt.Errorf("worker base_dir is required")
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway url is required")
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be greater than 0")
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	return c.Database.validate()
}

// ValidateInferenceConfig checks the sections the inference service reads,
// including the feature column layout against the request schema
func (c *Config) ValidateInferenceConfig() error {
	if err := c.Server.validate(); err != nil {
		return err
	}

	if err := schema.Reconcile(c.Inference.Columns, dto.FeatureFields()); err != nil {
		return fmt.Errorf("invalid inference columns: %w", err)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if c.RedisAI.Addr == "" {
		return fmt.Errorf("redisai addr is required")
	}

	if c.Inference.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("inference rate_limit requests_per_second must be greater than 0")
	}

	if c.Inference.RateLimit.Burst < 1 {
		return fmt.Errorf("inference rate_limit burst must be at least 1")
	}

	if len(c.Inference.ModelGroups) == 0 {
		return fmt.Errorf("inference model_groups is required")
	}

	switch c.Artifacts.Backend {
	case ArtifactsLocal:
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts dir is required for the local backend")
		}
	case ArtifactsS3:
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts s3 bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid artifacts backend: %q (must be %s or %s)", c.Artifacts.Backend, ArtifactsLocal, ArtifactsS3)
	}

	return nil
}

// ValidateUploadConfig checks the sections the upload service reads
func (c *Config) ValidateUploadConfig() error {
	if err := c.Server.validate(); err != nil {
		return err
	}

	if err := c.RabbitMQ.validate(); err != nil {
		return err
	}

	if c.Upload.Dir == "" {
		return fmt.Errorf("upload dir is required")
	}

	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload max_file_size must be greater than 0")
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway url is required")
	}

	return c.Database.validate()
}

func (s *ServerConfig) validate() error {
	if s.Port < MinPort || s.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", s.Port, MinPort, MaxPort)
	}
	return nil
}

func (r *RabbitMQConfig) validate() error {
	if r.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if r.Port < MinPort || r.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", r.Port, MinPort, MaxPort)
	}

	if r.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	if r.Exchange.Name != "" && r.Exchange.Type == "" {
		return errors.New("rabbitmq exchange type is required when an exchange is set")
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	if !d.Enabled {
		return nil
	}

	if d.Host == "" {
		return errors.New("database host is required")
	}

	if d.Port < MinPort || d.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", d.Port, MinPort, MaxPort)
	}

	if d.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}
