//go:build integration

// Run with: go test -tags=integration ./internal/worker/...

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
	sharedrabbitmq "github.com/cuongbtq/pricing-pipeline/shared/rabbitmq"
)

func setupRabbitMQ(t *testing.T, ctx context.Context) *sharedrabbitmq.Config {
	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return &sharedrabbitmq.Config{
		Host:              host,
		Port:              port.Int(),
		User:              container.AdminUsername,
		Password:          container.AdminPassword,
		QueueName:         "file_queue",
		QueueDurable:      true,
		RetryInterval:     time.Second,
		ConnectionTimeout: 10 * time.Second,
		PublishRetries:    2,
		PublishRetryDelay: 100 * time.Millisecond,
	}
}

func TestConsumer_RealBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := setupRabbitMQ(t, ctx)

	publisher := sharedrabbitmq.NewClient(cfg, discardLogger())
	require.NoError(t, publisher.Connect(ctx, 5))
	defer publisher.Close()

	proc := &fakeProcessor{}
	recorder := &fakeRecorder{}
	consumer := NewConsumer(&Config{
		Logger:    discardLogger(),
		Broker:    sharedrabbitmq.NewClient(cfg, discardLogger()),
		Processor: proc,
		Recorder:  recorder,
		WorkerID:  "worker-it",
	})
	defer consumer.Close()
	require.NoError(t, consumer.Connect(ctx, 5))

	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(consumeCtx) }()

	for _, body := range []string{"cars.xlsx", "../etc/passwd", "trucks.csv"} {
		require.NoError(t, publisher.PublishWithRetry(ctx, []byte(body), "text/plain"))
	}

	require.Eventually(t, func() bool { return len(recorder.Runs()) == 3 }, 30*time.Second, 50*time.Millisecond)

	stop()
	require.NoError(t, <-done)

	runs := recorder.Runs()
	assert.Equal(t, "cars.xlsx", runs[0].Filename)
	assert.Equal(t, domain.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, domain.RunStatusDropped, runs[1].Status)
	assert.Equal(t, "trucks.csv", runs[2].Filename)
	assert.Equal(t, "worker-it", runs[2].WorkerID)

	// the invalid payload never reached the processor
	assert.Equal(t, []string{"cars.xlsx", "trucks.csv"}, proc.Calls())
}
