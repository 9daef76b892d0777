// Package cachetest provides an in-memory key-value cache with a controllable clock.
package cachetest

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an expiring map that counts its calls
type Memory struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]entry

	Gets int
	Sets int
	// GetErr and SetErr are returned by every Get and Set when set
	GetErr error
	SetErr error
	// TTLs records the expiry passed to each Set
	TTLs []time.Duration
}

// NewMemory returns an empty cache whose clock starts at a fixed instant
func NewMemory() *Memory {
	return &Memory{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		entries: make(map[string]entry),
	}
}

// Advance moves the cache clock forward
func (m *Memory) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Gets++
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	e, ok := m.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !m.now.Before(e.expiresAt)) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sets++
	m.TTLs = append(m.TTLs, ttl)
	if m.SetErr != nil {
		return m.SetErr
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// SetCount returns the number of Set calls
func (m *Memory) SetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sets
}
