// Package redisai drives the RedisAI module through go-redis raw commands:
// model registration, tensor I/O and model execution.
package redisai

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrUnexpectedReply is returned when RedisAI answers with an unexpected shape
var ErrUnexpectedReply = errors.New("unexpected RedisAI reply")

// Config holds the RedisAI connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ExecuteTimeout is passed to AI.MODELEXECUTE; zero leaves it to the server
	ExecuteTimeout time.Duration
}

// ModelSpec describes how a model blob is registered
type ModelSpec struct {
	Backend string // ONNX, TF, TORCH
	Device  string // CPU, GPU
	Inputs  []string
	Outputs []string
}

// Client is a RedisAI client
type Client struct {
	rdb            goredis.UniversalClient
	executeTimeout time.Duration
	logger         *slog.Logger
}

// NewClient creates a client; no connection is made until the first command
func NewClient(config *Config, logger *slog.Logger) *Client {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	return &Client{rdb: rdb, executeTimeout: config.ExecuteTimeout, logger: logger}
}

// ModelExists reports whether key holds a registered model
func (c *Client) ModelExists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redisai exists %s: %w", key, err)
	}
	return n > 0, nil
}

// StoreModel registers blob under key. The model has no expiry.
func (c *Client) StoreModel(ctx context.Context, key string, spec ModelSpec, blob []byte) error {
	if err := c.rdb.Do(ctx, modelStoreArgs(key, spec, blob)...).Err(); err != nil {
		return fmt.Errorf("redisai modelstore %s: %w", key, err)
	}

	c.logger.Info("Model registered in RedisAI",
		slog.String("key", key),
		slog.String("backend", spec.Backend),
		slog.Int("size", len(blob)),
	)
	return nil
}

// SetTensor writes a 1 x n float32 tensor
func (c *Client) SetTensor(ctx context.Context, key string, values []float32) error {
	args := []any{"AI.TENSORSET", key, "FLOAT", 1, len(values), "BLOB", encodeFloat32(values)}
	if err := c.rdb.Do(ctx, args...).Err(); err != nil {
		return fmt.Errorf("redisai tensorset %s: %w", key, err)
	}
	return nil
}

// ExecuteModel runs the model at key reading inputs and writing outputs
func (c *Client) ExecuteModel(ctx context.Context, key string, inputs, outputs []string) error {
	if err := c.rdb.Do(ctx, modelExecuteArgs(key, inputs, outputs, c.executeTimeout)...).Err(); err != nil {
		return fmt.Errorf("redisai modelexecute %s: %w", key, err)
	}
	return nil
}

// GetTensor reads a float tensor as a flat slice
func (c *Client) GetTensor(ctx context.Context, key string) ([]float32, error) {
	reply, err := c.rdb.Do(ctx, "AI.TENSORGET", key, "BLOB").Result()
	if err != nil {
		return nil, fmt.Errorf("redisai tensorget %s: %w", key, err)
	}

	var blob []byte
	switch v := reply.(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, fmt.Errorf("%w: tensorget %s returned %T", ErrUnexpectedReply, key, reply)
	}

	return decodeFloat32(blob)
}

// Delete removes tensors or models
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redisai del: %w", err)
	}
	return nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisai ping: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	c.logger.Info("Closing RedisAI connection")
	return c.rdb.Close()
}

func modelStoreArgs(key string, spec ModelSpec, blob []byte) []any {
	args := []any{"AI.MODELSTORE", key, spec.Backend, spec.Device}
	args = appendNamed(args, "INPUTS", spec.Inputs)
	args = appendNamed(args, "OUTPUTS", spec.Outputs)
	return append(args, "BLOB", blob)
}

func modelExecuteArgs(key string, inputs, outputs []string, timeout time.Duration) []any {
	args := []any{"AI.MODELEXECUTE", key}
	args = appendNamed(args, "INPUTS", inputs)
	args = appendNamed(args, "OUTPUTS", outputs)
	if timeout > 0 {
		args = append(args, "TIMEOUT", timeout.Milliseconds())
	}
	return args
}

func appendNamed(args []any, keyword string, names []string) []any {
	args = append(args, keyword, len(names))
	for _, name := range names {
		args = append(args, name)
	}
	return args
}

// encodeFloat32 lays values out the way RedisAI expects a FLOAT blob: little endian
func encodeFloat32(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: blob of %d bytes is not a float32 tensor", ErrUnexpectedReply, len(blob))
	}
	values := make([]float32, len(blob)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return values, nil
}
