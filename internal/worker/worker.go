package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/pricing-pipeline/internal/processor"
	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
)

// prefetchCount keeps exactly one unacknowledged job in flight per consumer
const prefetchCount = 1

// Broker is the queue connection the consumer drives; *rabbitmq.Client implements it
type Broker interface {
	Connect(ctx context.Context, maxRetries int) error
	SetPrefetch(count int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	IsConnected() bool
	NotifyClose() <-chan *amqp.Error
	Close() error
}

// FileProcessor runs one job's file through the prediction gateway
type FileProcessor interface {
	Process(ctx context.Context, filename string) (*processor.Result, error)
}

// RunRecorder persists the outcome of a job
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.Run) error
}

// Config holds consumer dependencies
type Config struct {
	Logger    *slog.Logger
	Broker    Broker
	Processor FileProcessor
	Recorder  RunRecorder // optional
	WorkerID  string
	// JobTimeout bounds a single job; zero means no limit
	JobTimeout time.Duration
}

// Consumer pulls jobs from the work queue and processes them one at a time
type Consumer struct {
	logger     *slog.Logger
	broker     Broker
	processor  FileProcessor
	recorder   RunRecorder
	workerID   string
	jobTimeout time.Duration
	state      atomic.Int32
}

// NewConsumer creates a consumer in the Disconnected state
func NewConsumer(cfg *Config) *Consumer {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()
	}

	return &Consumer{
		logger:     cfg.Logger,
		broker:     cfg.Broker,
		processor:  cfg.Processor,
		recorder:   cfg.Recorder,
		workerID:   workerID,
		jobTimeout: cfg.JobTimeout,
	}
}

// State returns the current lifecycle state
func (c *Consumer) State() domain.State {
	return domain.State(c.state.Load())
}

func (c *Consumer) setState(s domain.State) {
	old := domain.State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("Consumer state changed",
			slog.String("from", old.String()),
			slog.String("to", s.String()),
		)
	}
}

// Connect opens the broker connection and declares the work queue, retrying
// up to maxRetries times with a fixed delay. An error here is fatal for the process.
func (c *Consumer) Connect(ctx context.Context, maxRetries int) error {
	c.setState(domain.StateConnecting)

	if err := c.broker.Connect(ctx, maxRetries); err != nil {
		c.setState(domain.StateDisconnected)
		return fmt.Errorf("failed to connect consumer: %w", err)
	}

	c.setState(domain.StateConnected)
	return nil
}

// StartConsuming blocks, handling one delivery at a time, until ctx is cancelled
// (returns nil) or the broker drops the delivery channel (returns ErrConnectionLost).
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.State() != domain.StateConnected || !c.broker.IsConnected() {
		return domain.ErrNotConnected
	}

	deliveries, err := c.setupConsumer()
	if err != nil {
		return err
	}

	c.setState(domain.StateConsuming)
	return c.consume(ctx, deliveries)
}

// Close releases the broker connection
func (c *Consumer) Close() error {
	defer c.setState(domain.StateClosed)

	if err := c.broker.Close(); err != nil {
		return fmt.Errorf("failed to close broker: %w", err)
	}
	return nil
}
