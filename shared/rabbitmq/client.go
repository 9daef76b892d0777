package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned by operations that need an open channel
	ErrNotConnected = errors.New("not connected to RabbitMQ")

	// ErrConnectRetriesExhausted is returned when every connection attempt failed
	ErrConnectRetriesExhausted = errors.New("rabbitmq connection retries exhausted")
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string // empty means the default exchange
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// URL builds the AMQP connection URL from the config
func (c *Config) URL() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}
	return uri.String()
}

func (c *Config) routingKey() string {
	if c.ExchangeName == "" || c.RoutingKey == "" {
		return c.QueueName
	}
	return c.RoutingKey
}

// Connection is the part of *amqp.Connection the client depends on
type Connection interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

// Channel is the part of *amqp.Channel the client depends on
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection
type Dialer func(url string, cfg amqp.Config) (Connection, error)

// Sleeper waits between connection attempts
type Sleeper func(ctx context.Context, d time.Duration) error

type amqpConnection struct {
	*amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer backed by amqp091-go
func DialAMQP(url string, cfg amqp.Config) (Connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{Connection: conn}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customises a Client
type Option func(*Client)

// WithDialer replaces the AMQP dialer
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithSleeper replaces the wait between connection attempts
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// Client represents a RabbitMQ client
type Client struct {
	config *Config
	logger *slog.Logger
	dial   Dialer
	sleep  Sleeper

	mu        sync.RWMutex
	conn      Connection
	channel   Channel
	closeChan chan *amqp.Error
}

// NewClient creates a new RabbitMQ client. Call Connect before use.
func NewClient(config *Config, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		config: config,
		logger: logger,
		dial:   DialAMQP,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Connect establishes the connection and declares the queue. Every failed attempt
// is followed by a fixed RetryInterval wait; after maxRetries failed attempts it
// returns ErrConnectRetriesExhausted.
func (c *Client) Connect(ctx context.Context, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.String("host", c.config.Host),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxRetries),
		)

		if err = c.open(amqpConfig); err == nil {
			c.logger.Info("RabbitMQ client initialized",
				slog.String("exchange", c.config.ExchangeName),
				slog.String("queue", c.config.QueueName),
			)
			return nil
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < maxRetries {
			if sleepErr := c.sleep(ctx, c.config.RetryInterval); sleepErr != nil {
				return fmt.Errorf("connect to RabbitMQ interrupted: %w", sleepErr)
			}
		}
	}

	return fmt.Errorf("%w: %d attempts: %v", ErrConnectRetriesExhausted, maxRetries, err)
}

// open runs one connection attempt: dial, open a channel and declare topology
func (c *Client) open(amqpConfig amqp.Config) error {
	conn, err := c.dial(c.config.URL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	closeChan := make(chan *amqp.Error, 1)
	channel.NotifyClose(closeChan)

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.closeChan = closeChan
	c.mu.Unlock()

	return nil
}

// setup declares exchange, queue, and bindings. Declarations are idempotent.
func (c *Client) setup(channel Channel) error {
	_, err := channel.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// default exchange routes by queue name, nothing to bind
	if c.config.ExchangeName == "" {
		return nil
	}

	err = channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = channel.QueueBind(
		c.config.QueueName,    // queue name
		c.config.routingKey(), // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

func (c *Client) currentChannel() (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.channel == nil || c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

// SetPrefetch limits the number of unacknowledged deliveries for this consumer
func (c *Client) SetPrefetch(count int) error {
	channel, err := c.currentChannel()
	if err != nil {
		return err
	}

	// prefetch size 0 means no byte limit, global false means per consumer
	if err := channel.Qos(count, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// Consume starts consuming messages from the queue with manual acknowledgement
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	channel, err := c.currentChannel()
	if err != nil {
		return nil, err
	}

	messages, err := channel.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

func (c *Client) publish(ctx context.Context, channel Channel, body []byte, contentType string) error {
	return channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		c.config.routingKey(), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// PublishWithRetry publishes a message to RabbitMQ with retry logic and exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	channel, err := c.currentChannel()
	if err != nil {
		return err
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.publish(ctx, channel, body, contentType)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Successfully published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.Int("body_size", len(body)),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return fmt.Errorf("publish interrupted: %w", sleepErr)
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// NotifyClose returns the channel that receives the broker's close reason
func (c *Client) NotifyClose() <-chan *amqp.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeChan
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	_, err := c.currentChannel()
	return err == nil
}

// HealthCheck reports ErrNotConnected when the channel is gone
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.currentChannel()
	return err
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing RabbitMQ connection")

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	err := c.conn.Close()
	c.channel = nil
	c.conn = nil
	if err != nil {
		c.logger.Error("Failed to close RabbitMQ connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}
