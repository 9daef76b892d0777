package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/cache"
	"github.com/cuongbtq/pricing-pipeline/internal/inference/model"
)

// Serialized serves models decoded in process from a blob cached in the
// key-value store. Native and portable differ only by codec.
type Serialized struct {
	format       Format
	codec        model.Codec
	artifacts    artifact.Store
	loader       *cache.Loader
	featureOrder []string
	logger       *slog.Logger
}

// NewSerialized creates a serialized backend. featureOrder is the serving
// vector layout every model must have been trained on.
func NewSerialized(format Format, codec model.Codec, artifacts artifact.Store, loader *cache.Loader, featureOrder []string, logger *slog.Logger) *Serialized {
	return &Serialized{
		format:       format,
		codec:        codec,
		artifacts:    artifacts,
		loader:       loader,
		featureOrder: featureOrder,
		logger:       logger.With(slog.String("backend", string(format))),
	}
}

// NewNative serves models/model_{group}.gob
func NewNative(artifacts artifact.Store, loader *cache.Loader, featureOrder []string, logger *slog.Logger) *Serialized {
	return NewSerialized(FormatNative, model.GobCodec{}, artifacts, loader, featureOrder, logger)
}

// NewPortable serves models/model_{group}.json
func NewPortable(artifacts artifact.Store, loader *cache.Loader, featureOrder []string, logger *slog.Logger) *Serialized {
	return NewSerialized(FormatPortable, model.JSONCodec{}, artifacts, loader, featureOrder, logger)
}

func (b *Serialized) Format() Format {
	return b.format
}

// CacheKey is the key-value cache key of a group's blob. The extension keeps
// the formats of one group apart.
func (b *Serialized) CacheKey(group string) string {
	return artifact.ModelName(group) + b.codec.Ext()
}

func (b *Serialized) Predict(ctx context.Context, group string, features []float64) (float64, error) {
	regressor, err := b.resolve(ctx, group)
	if err != nil {
		return 0, err
	}

	out, err := regressor.Predict(features)
	if err != nil {
		return 0, fmt.Errorf("model %s: %w", group, err)
	}
	return first(out)
}

func (b *Serialized) resolve(ctx context.Context, group string) (model.Regressor, error) {
	path := artifact.ModelPath(group, b.codec.Ext())
	blob, err := b.loader.Get(ctx, b.CacheKey(group), func(ctx context.Context) ([]byte, error) {
		return b.artifacts.Get(ctx, path)
	})
	if err != nil {
		return nil, err
	}

	a, err := b.codec.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	if err := a.CheckFeatureOrder(b.featureOrder); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}

	regressor, err := a.Regressor()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return regressor, nil
}
