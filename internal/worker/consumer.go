package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
)

// setupConsumer sets QoS and registers a manual-ack consumer
func (c *Consumer) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := c.broker.SetPrefetch(prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	c.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", prefetchCount),
	)

	deliveries, err := c.broker.Consume(c.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", c.workerID),
	)

	return deliveries, nil
}

// consume is the serial receive loop; the next delivery is read only after the
// previous one has been acked
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	closed := c.broker.NotifyClose()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped - context canceled")
			return nil

		case reason := <-closed:
			c.logger.Error("RabbitMQ channel closed", slog.Any("reason", reason))
			c.setState(domain.StateDisconnected)
			return fmt.Errorf("%w: %v", domain.ErrConnectionLost, reason)

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Error("RabbitMQ delivery channel closed")
				c.setState(domain.StateDisconnected)
				return domain.ErrConnectionLost
			}

			c.handle(ctx, delivery)
		}
	}
}

// handle processes one delivery and acks it exactly once, whatever the outcome
func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	defer c.ack(delivery)

	run := c.processJob(ctx, delivery)
	c.recordRun(ctx, run)
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
		return
	}

	c.logger.Debug("Message ACKed",
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
	)
}
