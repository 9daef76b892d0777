package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/pricing-pipeline/internal/processor"
	"github.com/cuongbtq/pricing-pipeline/internal/tabular"
	"github.com/cuongbtq/pricing-pipeline/internal/worker/domain"
	"github.com/cuongbtq/pricing-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/pricing-pipeline/shared/rabbitmq/rabbitmqtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	fn    func(filename string) (*processor.Result, error)
}

func (f *fakeProcessor) Process(ctx context.Context, filename string) (*processor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filename)
	f.mu.Unlock()

	if f.fn == nil {
		return &processor.Result{Filename: filename, Rows: 1, Predicted: 1}, nil
	}
	return f.fn(filename)
}

func (f *fakeProcessor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []domain.Run
	err  error
}

func (f *fakeRecorder) RecordRun(ctx context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return f.err
}

func (f *fakeRecorder) Runs() []domain.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Run(nil), f.runs...)
}

func newBrokerClient(broker *rabbitmqtest.Broker) *rabbitmq.Client {
	cfg := &rabbitmq.Config{
		Host:          "localhost",
		Port:          5672,
		QueueName:     "file_queue",
		RetryInterval: 2 * time.Second,
	}
	return rabbitmq.NewClient(cfg, discardLogger(),
		rabbitmq.WithDialer(broker.Dial),
		rabbitmq.WithSleeper(broker.Sleep),
	)
}

// startConsumer connects and runs StartConsuming in the background
func startConsumer(t *testing.T, consumer *Consumer) (cancel func() error) {
	t.Helper()
	require.NoError(t, consumer.Connect(context.Background(), 1))

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(ctx) }()

	require.Eventually(t, func() bool { return consumer.State() == domain.StateConsuming }, time.Second, 5*time.Millisecond)

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func waitAck(t *testing.T, acks *rabbitmqtest.Acknowledger, tag uint64) {
	t.Helper()
	select {
	case got := <-acks.Acked():
		require.Equal(t, tag, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery %d was not acked", tag)
	}
}

func TestConsumer_AcksExactlyOnce(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		process    func(string) (*processor.Result, error)
		wantCalled bool
		wantStatus string
	}{
		{
			name:       "success",
			body:       "cars.xlsx",
			wantCalled: true,
			wantStatus: domain.RunStatusCompleted,
		},
		{
			name: "partial rows",
			body: "cars.xlsx",
			process: func(f string) (*processor.Result, error) {
				return &processor.Result{Filename: f, Rows: 3, Predicted: 2, Failed: 1}, nil
			},
			wantCalled: true,
			wantStatus: domain.RunStatusPartial,
		},
		{
			name: "processor error",
			body: "cars.xlsx",
			process: func(string) (*processor.Result, error) {
				return nil, errors.New("failed to load: no such file")
			},
			wantCalled: true,
			wantStatus: domain.RunStatusFailed,
		},
		{
			name: "processor panic",
			body: "cars.xlsx",
			process: func(string) (*processor.Result, error) {
				panic("index out of range")
			},
			wantCalled: true,
			wantStatus: domain.RunStatusFailed,
		},
		{name: "empty body", body: "   ", wantStatus: domain.RunStatusDropped},
		{name: "invalid utf8", body: "\xff\xfe", wantStatus: domain.RunStatusDropped},
		{name: "path traversal", body: "../etc/passwd", wantStatus: domain.RunStatusDropped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := rabbitmqtest.NewBroker()
			proc := &fakeProcessor{fn: tt.process}
			recorder := &fakeRecorder{}
			consumer := NewConsumer(&Config{
				Logger:    discardLogger(),
				Broker:    newBrokerClient(broker),
				Processor: proc,
				Recorder:  recorder,
				WorkerID:  "worker-test",
			})
			stop := startConsumer(t, consumer)

			acks := rabbitmqtest.NewAcknowledger()
			broker.Channel.Deliveries <- acks.Delivery(1, tt.body)
			// a second job proves the loop survived the first one
			broker.Channel.Deliveries <- acks.Delivery(2, "next.xlsx")
			waitAck(t, acks, 1)
			waitAck(t, acks, 2)

			require.NoError(t, stop())

			assert.Equal(t, 1, acks.AckCount(1))
			assert.Equal(t, 1, acks.AckCount(2))
			assert.Zero(t, acks.NackCount(1))

			if tt.wantCalled {
				assert.Equal(t, []string{"cars.xlsx", "next.xlsx"}, proc.Calls())
			} else {
				assert.Equal(t, []string{"next.xlsx"}, proc.Calls())
			}

			runs := recorder.Runs()
			require.Len(t, runs, 2)
			assert.Equal(t, tt.wantStatus, runs[0].Status)
			assert.Equal(t, "worker-test", runs[0].WorkerID)
			assert.NotEmpty(t, runs[0].RunID)
		})
	}
}

func TestConsumer_PrefetchAndManualAck(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	consumer := NewConsumer(&Config{
		Logger:    discardLogger(),
		Broker:    newBrokerClient(broker),
		Processor: &fakeProcessor{},
		WorkerID:  "worker-7",
	})
	stop := startConsumer(t, consumer)
	require.NoError(t, stop())

	assert.Equal(t, 1, broker.Channel.PrefetchCount)
	assert.False(t, broker.Channel.AutoAck)
	assert.Equal(t, "worker-7", broker.Channel.ConsumerTag)
}

func TestConsumer_RecorderFailureStillAcks(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	consumer := NewConsumer(&Config{
		Logger:    discardLogger(),
		Broker:    newBrokerClient(broker),
		Processor: &fakeProcessor{},
		Recorder:  &fakeRecorder{err: errors.New("database is down")},
	})
	stop := startConsumer(t, consumer)

	acks := rabbitmqtest.NewAcknowledger()
	broker.Channel.Deliveries <- acks.Delivery(9, "cars.xlsx")
	waitAck(t, acks, 9)

	require.NoError(t, stop())
	assert.Equal(t, 1, acks.AckCount(9))
}

func TestConsumer_SerialProcessing(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	var inFlight, maxInFlight atomic.Int32
	proc := &fakeProcessor{fn: func(f string) (*processor.Result, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &processor.Result{Filename: f}, nil
	}}
	consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: proc})
	stop := startConsumer(t, consumer)

	acks := rabbitmqtest.NewAcknowledger()
	for tag := uint64(1); tag <= 5; tag++ {
		broker.Channel.Deliveries <- acks.Delivery(tag, "cars.xlsx")
	}
	for tag := uint64(1); tag <= 5; tag++ {
		waitAck(t, acks, tag)
	}

	require.NoError(t, stop())
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestConsumer_StartBeforeConnect(t *testing.T) {
	consumer := NewConsumer(&Config{
		Logger:    discardLogger(),
		Broker:    newBrokerClient(rabbitmqtest.NewBroker()),
		Processor: &fakeProcessor{},
	})

	err := consumer.StartConsuming(context.Background())

	require.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, domain.StateDisconnected, consumer.State())
}

func TestConsumer_ConnectionLost(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: &fakeProcessor{}})
	require.NoError(t, consumer.Connect(context.Background(), 1))

	close(broker.Channel.Deliveries)

	err := consumer.StartConsuming(context.Background())
	require.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.Equal(t, domain.StateDisconnected, consumer.State())
}

func TestConsumer_ChannelClosedByBroker(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: &fakeProcessor{}})
	require.NoError(t, consumer.Connect(context.Background(), 1))

	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(context.Background()) }()
	require.Eventually(t, func() bool { return consumer.State() == domain.StateConsuming }, time.Second, 5*time.Millisecond)

	broker.Channel.CloseWithError(&amqp.Error{Code: 320, Reason: "CONNECTION_FORCED"})

	select {
	case err := <-done:
		require.ErrorIs(t, err, domain.ErrConnectionLost)
		assert.Contains(t, err.Error(), "CONNECTION_FORCED")
	case <-time.After(2 * time.Second):
		t.Fatal("consumer kept running after the channel closed")
	}
	assert.Equal(t, domain.StateDisconnected, consumer.State())
}

func TestConsumer_Close(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: &fakeProcessor{}})
	require.NoError(t, consumer.Connect(context.Background(), 1))

	require.NoError(t, consumer.Close())
	assert.Equal(t, domain.StateClosed, consumer.State())
	assert.True(t, broker.Channel.Closed)
}

// Scenario C: two failed dials, then success within a budget of three
func TestConsumer_ConnectRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantErr    bool
		wantState  domain.State
	}{
		{name: "three attempts allowed", maxRetries: 3, wantState: domain.StateConnected},
		{name: "two attempts allowed", maxRetries: 2, wantErr: true, wantState: domain.StateDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := rabbitmqtest.NewBroker()
			broker.FailDials = 2
			consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: &fakeProcessor{}})

			err := consumer.Connect(context.Background(), tt.maxRetries)

			if tt.wantErr {
				require.ErrorIs(t, err, rabbitmq.ErrConnectRetriesExhausted)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.maxRetries, broker.DialCount())
			assert.Equal(t, tt.wantState, consumer.State())
		})
	}
}

// Scenarios A and B: a queued file name flows through the real processor
func TestConsumer_EndToEnd(t *testing.T) {
	tests := []struct {
		name       string
		failRow    int
		wantPrices []bool
		wantStatus string
	}{
		{name: "all rows predicted", wantPrices: []bool{true, true, true}, wantStatus: domain.RunStatusCompleted},
		{name: "row two fails", failRow: 2, wantPrices: []bool{true, false, true}, wantStatus: domain.RunStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, tabular.Save(filepath.Join(dir, "cars.xlsx"), &tabular.Dataset{
				Columns: []string{"model_group", "kilometers"},
				Rows: []tabular.Row{
					{"model_group": "sedan", "kilometers": int64(1000)},
					{"model_group": "sedan", "kilometers": int64(2000)},
					{"model_group": "sedan", "kilometers": int64(3000)},
				},
			}))

			var calls atomic.Int32
			gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1))
				if n == tt.failRow {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				json.NewEncoder(w).Encode(map[string]float64{"predicted_price": 10000.5})
			}))
			defer gateway.Close()

			proc := processor.New(processor.Config{BaseDir: dir},
				processor.NewClient(processor.ClientConfig{BaseURL: gateway.URL, Endpoint: "/api/v1/predict/onnx", Timeout: time.Second}, discardLogger()),
				discardLogger(),
			)

			broker := rabbitmqtest.NewBroker()
			recorder := &fakeRecorder{}
			consumer := NewConsumer(&Config{Logger: discardLogger(), Broker: newBrokerClient(broker), Processor: proc, Recorder: recorder})
			stop := startConsumer(t, consumer)

			acks := rabbitmqtest.NewAcknowledger()
			broker.Channel.Deliveries <- acks.Delivery(1, "cars.xlsx")
			waitAck(t, acks, 1)
			require.NoError(t, stop())

			assert.Equal(t, 1, acks.AckCount(1))

			out, err := tabular.Load(filepath.Join(dir, "processed_cars.xlsx"))
			require.NoError(t, err)
			require.Equal(t, 3, out.Len())
			for i, want := range tt.wantPrices {
				price, ok := out.Rows[i][processor.PredictionColumn]
				assert.Equal(t, want, ok, "row %d", i+1)
				if want {
					assert.Equal(t, 10000.5, price)
				}
			}

			runs := recorder.Runs()
			require.Len(t, runs, 1)
			assert.Equal(t, tt.wantStatus, runs[0].Status)
			assert.Equal(t, "processed_cars.xlsx", runs[0].OutputFile)
		})
	}
}

func TestConsumer_ShutdownFinishesInFlightJob(t *testing.T) {
	dir := t.TempDir()
	rows := make([]tabular.Row, 6)
	for i := range rows {
		rows[i] = tabular.Row{"model_group": "sedan", "kilometers": int64(1000 * (i + 1))}
	}
	require.NoError(t, tabular.Save(filepath.Join(dir, "cars.csv"), &tabular.Dataset{
		Columns: []string{"model_group", "kilometers"},
		Rows:    rows,
	}))

	var calls atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]float64{"predicted_price": 9500})
	}))
	defer gateway.Close()

	proc := processor.New(processor.Config{BaseDir: dir},
		processor.NewClient(processor.ClientConfig{BaseURL: gateway.URL, Endpoint: "/api/v1/predict/onnx", Timeout: time.Second}, discardLogger()),
		discardLogger(),
	)

	broker := rabbitmqtest.NewBroker()
	recorder := &fakeRecorder{}
	consumer := NewConsumer(&Config{
		Logger:     discardLogger(),
		Broker:     newBrokerClient(broker),
		Processor:  proc,
		Recorder:   recorder,
		JobTimeout: 10 * time.Second,
	})
	stop := startConsumer(t, consumer)

	acks := rabbitmqtest.NewAcknowledger()
	broker.Channel.Deliveries <- acks.Delivery(1, "cars.csv")
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)

	// shutdown arrives while the job is running
	require.NoError(t, stop())

	assert.Equal(t, 1, acks.AckCount(1))
	assert.Equal(t, int32(6), calls.Load())

	out, err := tabular.Load(filepath.Join(dir, "processed_cars.csv"))
	require.NoError(t, err)
	require.Equal(t, 6, out.Len())
	for i, row := range out.Rows {
		_, ok := row[processor.PredictionColumn]
		assert.True(t, ok, "row %d", i+1)
	}

	runs := recorder.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 6, runs[0].PredictedRows)
}
