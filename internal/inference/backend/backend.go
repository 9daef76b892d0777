// Package backend unifies the model serving formats behind one interface:
// in-process serialized models (native gob, portable JSON) and models
// executed by the RedisAI tensor store.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Format selects a serving backend
type Format string

const (
	FormatNative   Format = "native"
	FormatPortable Format = "portable"
	FormatONNX     Format = "onnx"
)

// ErrUnknownFormat is returned for a format no backend serves
var ErrUnknownFormat = errors.New("unknown model format")

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatNative, FormatPortable, FormatONNX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Backend resolves the model of a group and runs it on one feature vector
type Backend interface {
	Format() Format
	Predict(ctx context.Context, group string, features []float64) (float64, error)
}

// Preloader is implemented by backends that can load a group ahead of the first request
type Preloader interface {
	Preload(ctx context.Context, group string) error
}

func first[T float32 | float64](values []T) (float64, error) {
	if len(values) == 0 {
		return 0, errors.New("model returned no output")
	}
	return float64(values[0]), nil
}
