// Package cache implements cache-or-load for artifact blobs: read from the
// key-value cache, fall back to the artifact store on a miss and write back
// with an expiry.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached artifact lives
const DefaultTTL = 24 * time.Hour

// LoadTimeout bounds a shared load. It does not follow any single caller's
// context, since other callers may be waiting on the same result.
const LoadTimeout = 30 * time.Second

// Store is the key-value cache; *redis.Client implements it
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Source loads the authoritative copy of an artifact
type Source func(ctx context.Context) ([]byte, error)

// Loader resolves blobs through the cache. Concurrent loads of one key share a
// single storage read.
type Loader struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewLoader creates a Loader; ttl <= 0 selects DefaultTTL
func NewLoader(store Store, ttl time.Duration, logger *slog.Logger) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Loader{store: store, ttl: ttl, logger: logger}
}

// Get returns the blob at key, loading it from source on a miss
func (l *Loader) Get(ctx context.Context, key string, source Source) ([]byte, error) {
	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		// the cache is an optimisation, storage stays authoritative
		l.logger.Warn("Cache read failed, loading from storage",
			slog.String("key", key),
			slog.Any("error", err),
		)
	} else if found {
		return data, nil
	}
	cacheHealthy := err == nil

	result := l.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		return l.load(loadCtx, key, source, cacheHealthy)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug("Joined in-flight load", slog.String("key", key))
		}
		return res.Val.([]byte), nil
	}
}

func (l *Loader) load(ctx context.Context, key string, source Source, writeBack bool) ([]byte, error) {
	start := time.Now()
	data, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	l.logger.Info("Artifact loaded from storage",
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if !writeBack {
		return data, nil
	}

	if err := l.store.Set(ctx, key, data, l.ttl); err != nil {
		l.logger.Warn("Failed to cache artifact",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
	return data, nil
}
