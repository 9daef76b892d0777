// Package rabbitmqtest provides in-memory stand-ins for the broker connection,
// used to drive rabbitmq.Client and the queue consumer in tests.
package rabbitmqtest

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/pricing-pipeline/shared/rabbitmq"
)

// ErrDialRefused is the error returned by a scripted failing dial
var ErrDialRefused = errors.New("dial tcp: connection refused")

// Broker scripts dial outcomes and records what the client did
type Broker struct {
	mu sync.Mutex

	// FailDials makes the first N dial attempts fail
	FailDials int
	// FailQueueDeclare makes every QueueDeclare fail
	FailQueueDeclare bool
	// FailPublishes makes the first N publishes fail
	FailPublishes int

	Dials     int
	Sleeps    []time.Duration
	Channel   *Channel
	Published []amqp.Publishing
	Keys      []string
}

// NewBroker returns a broker whose channel delivers from a buffered queue
func NewBroker() *Broker {
	b := &Broker{}
	b.Channel = &Channel{
		broker:     b,
		Deliveries: make(chan amqp.Delivery, 16),
	}
	return b
}

// Dial is a rabbitmq.Dialer
func (b *Broker) Dial(url string, cfg amqp.Config) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Dials++
	if b.Dials <= b.FailDials {
		return nil, ErrDialRefused
	}
	return &Connection{broker: b}, nil
}

// Sleep is a rabbitmq.Sleeper that records the requested waits without blocking
func (b *Broker) Sleep(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Sleeps = append(b.Sleeps, d)
	return ctx.Err()
}

// DialCount returns the number of dial attempts so far
func (b *Broker) DialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Dials
}

// Connection is a fake rabbitmq.Connection
type Connection struct {
	broker *Broker
	closed bool
}

func (c *Connection) Channel() (rabbitmq.Channel, error) {
	return c.broker.Channel, nil
}

func (c *Connection) Close() error {
	c.closed = true
	return nil
}

func (c *Connection) IsClosed() bool {
	return c.closed
}

// Channel is a fake rabbitmq.Channel
type Channel struct {
	broker *Broker

	mu            sync.Mutex
	Deliveries    chan amqp.Delivery
	Declared      []string
	Bound         []string
	PrefetchCount int
	ConsumerTag   string
	AutoAck       bool
	Closed        bool

	closeNotify chan *amqp.Error
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broker.FailQueueDeclare {
		return amqp.Queue{}, errors.New("access refused")
	}
	c.Declared = append(c.Declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Bound = append(c.Bound, exchange+"/"+key+"->"+name)
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.PrefetchCount = prefetchCount
	return nil
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ConsumerTag = consumer
	c.AutoAck = autoAck
	return c.Deliveries, nil
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailPublishes > 0 {
		b.FailPublishes--
		return errors.New("channel/connection is not open")
	}
	b.Published = append(b.Published, msg)
	b.Keys = append(b.Keys, exchange+"/"+key)
	return nil
}

func (c *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeNotify = receiver
	return receiver
}

// CloseWithError simulates the broker closing the channel
func (c *Channel) CloseWithError(reason *amqp.Error) {
	c.mu.Lock()
	receiver := c.closeNotify
	c.mu.Unlock()

	if receiver != nil {
		receiver <- reason
	}
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Closed = true
	return nil
}

// Acknowledger records acks and nacks per delivery tag
type Acknowledger struct {
	mu    sync.Mutex
	Acks  map[uint64]int
	Nacks map[uint64]int
	acked chan uint64
}

// NewAcknowledger returns an Acknowledger that also signals each ack on Acked()
func NewAcknowledger() *Acknowledger {
	return &Acknowledger{
		Acks:  make(map[uint64]int),
		Nacks: make(map[uint64]int),
		acked: make(chan uint64, 64),
	}
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	a.Acks[tag]++
	a.mu.Unlock()

	a.acked <- tag
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Nacks[tag]++
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Acked receives the delivery tag of every ack
func (a *Acknowledger) Acked() <-chan uint64 {
	return a.acked
}

// AckCount returns how often the delivery with tag was acked
func (a *Acknowledger) AckCount(tag uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Acks[tag]
}

// NackCount returns how often the delivery with tag was nacked or rejected
func (a *Acknowledger) NackCount(tag uint64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Nacks[tag]
}

// Delivery builds a delivery acknowledged through a
func (a *Acknowledger) Delivery(tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: a,
		DeliveryTag:  tag,
		Body:         []byte(body),
	}
}
