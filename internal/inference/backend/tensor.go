package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
	"github.com/cuongbtq/pricing-pipeline/shared/redisai"
)

const onnxExt = ".onnx"

// registerTimeout bounds a shared registration, which outlives the request that started it
const registerTimeout = 30 * time.Second

// TensorStore is the subset of the RedisAI client the tensor backend uses
type TensorStore interface {
	ModelExists(ctx context.Context, key string) (bool, error)
	StoreModel(ctx context.Context, key string, spec redisai.ModelSpec, blob []byte) error
	SetTensor(ctx context.Context, key string, values []float32) error
	ExecuteModel(ctx context.Context, key string, inputs, outputs []string) error
	GetTensor(ctx context.Context, key string) ([]float32, error)
	Delete(ctx context.Context, keys ...string) error
}

// TensorConfig describes how ONNX models are registered
type TensorConfig struct {
	Device     string
	InputName  string
	OutputName string
}

// Tensor serves ONNX models registered in RedisAI. A registered model has no
// expiry, so each group is read from the artifact store at most once per
// store lifetime.
type Tensor struct {
	store     TensorStore
	artifacts artifact.Store
	spec      redisai.ModelSpec
	group     singleflight.Group
	logger    *slog.Logger
}

func NewTensor(config TensorConfig, store TensorStore, artifacts artifact.Store, logger *slog.Logger) *Tensor {
	if config.Device == "" {
		config.Device = "CPU"
	}
	if config.InputName == "" {
		config.InputName = "float_input"
	}
	if config.OutputName == "" {
		config.OutputName = "variable"
	}

	return &Tensor{
		store:     store,
		artifacts: artifacts,
		spec: redisai.ModelSpec{
			Backend: "ONNX",
			Device:  config.Device,
			Inputs:  []string{config.InputName},
			Outputs: []string{config.OutputName},
		},
		logger: logger.With(slog.String("backend", string(FormatONNX))),
	}
}

func (b *Tensor) Format() Format {
	return FormatONNX
}

// Preload registers the group's model unless it already exists
func (b *Tensor) Preload(ctx context.Context, group string) error {
	return b.ensureModel(ctx, artifact.ModelName(group), group)
}

func (b *Tensor) ensureModel(ctx context.Context, key, group string) error {
	exists, err := b.store.ModelExists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	result := b.group.DoChan(key, func() (any, error) {
		registerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registerTimeout)
		defer cancel()
		return nil, b.register(registerCtx, key, group)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		return res.Err
	}
}

func (b *Tensor) register(ctx context.Context, key, group string) error {
	// another request may have finished registering while this one waited
	exists, err := b.store.ModelExists(ctx, key)
	if err != nil || exists {
		return err
	}

	path := artifact.ModelPath(group, onnxExt)
	blob, err := b.artifacts.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return b.store.StoreModel(ctx, key, b.spec, blob)
}

func (b *Tensor) Predict(ctx context.Context, group string, features []float64) (float64, error) {
	key := artifact.ModelName(group)
	if err := b.ensureModel(ctx, key, group); err != nil {
		return 0, err
	}

	id := uuid.NewString()
	in, out := "tensor:"+id+":in", "tensor:"+id+":out"
	defer func() {
		// the request context may be done already
		if err := b.store.Delete(context.WithoutCancel(ctx), in, out); err != nil {
			b.logger.Warn("Failed to delete request tensors", slog.String("key", id), slog.Any("error", err))
		}
	}()

	input := make([]float32, len(features))
	for i, v := range features {
		input[i] = float32(v)
	}

	if err := b.store.SetTensor(ctx, in, input); err != nil {
		return 0, err
	}
	if err := b.store.ExecuteModel(ctx, key, []string{in}, []string{out}); err != nil {
		return 0, err
	}
	values, err := b.store.GetTensor(ctx, out)
	if err != nil {
		return 0, err
	}
	return first(values)
}
