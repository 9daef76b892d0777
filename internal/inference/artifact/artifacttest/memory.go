// Package artifacttest provides an in-memory artifact store that counts reads.
package artifacttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/pricing-pipeline/internal/inference/artifact"
)

// Memory holds artifacts by path
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
	reads map[string]int
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte), reads: make(map[string]int)}
}

// Put stores data at path
func (m *Memory) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads[path]++
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", artifact.ErrNotFound, path)
	}
	return data, nil
}

// Reads returns how often path was read
func (m *Memory) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[path]
}
