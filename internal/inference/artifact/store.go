// Package artifact reads trained models and fitted encoders from the
// artifact store, either a local directory or an S3 bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no artifact exists at the requested path
var ErrNotFound = errors.New("artifact not found")

const (
	modelsDir   = "models"
	encodersDir = "encoders"
)

// Store reads artifact bytes by slash separated path
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// ModelName is the stable key of a group's model, shared by the caches and the tensor store
func ModelName(group string) string {
	return "model_" + group
}

// EncoderName is the stable key of a group's encoder
func EncoderName(group string) string {
	return "ordinal_encoder_" + group
}

// ModelPath returns models/model_{group}{ext}
func ModelPath(group, ext string) string {
	return path.Join(modelsDir, ModelName(group)+ext)
}

// EncoderPath returns encoders/ordinal_encoder_{group}.json
func EncoderPath(group string) string {
	return path.Join(encodersDir, EncoderName(group)+".json")
}

// LocalStore reads artifacts below a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean("/" + p)
	if strings.Contains(p, "..") || clean == "/" {
		return nil, fmt.Errorf("invalid artifact path %q", p)
	}

	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", p, err)
	}
	return data, nil
}
