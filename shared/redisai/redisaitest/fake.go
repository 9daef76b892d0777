// Package redisaitest provides an in-memory RedisAI stand-in.
package redisaitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuongbtq/pricing-pipeline/shared/redisai"
)

// Model is a registered fake model
type Model struct {
	Spec redisai.ModelSpec
	Blob []byte
}

// Store keeps models and tensors in maps and counts calls
type Store struct {
	mu      sync.Mutex
	models  map[string]Model
	tensors map[string][]float32

	// Run computes the output tensor of an execution; defaults to summing the input
	Run func(model string, input []float32) []float32
	// ExistsErr fails every ModelExists call
	ExistsErr error

	ExistsCalls  int
	StoreCalls   int
	ExecuteCalls int
	Deleted      []string
}

func NewStore() *Store {
	return &Store{
		models:  make(map[string]Model),
		tensors: make(map[string][]float32),
		Run: func(model string, input []float32) []float32 {
			var sum float32
			for _, v := range input {
				sum += v
			}
			return []float32{sum}
		},
	}
}

func (s *Store) ModelExists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ExistsCalls++
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	_, ok := s.models[key]
	return ok, nil
}

func (s *Store) StoreModel(ctx context.Context, key string, spec redisai.ModelSpec, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.StoreCalls++
	s.models[key] = Model{Spec: spec, Blob: blob}
	return nil
}

func (s *Store) SetTensor(ctx context.Context, key string, values []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tensors[key] = values
	return nil
}

func (s *Store) ExecuteModel(ctx context.Context, key string, inputs, outputs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ExecuteCalls++
	if _, ok := s.models[key]; !ok {
		return fmt.Errorf("model key is empty: %s", key)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return fmt.Errorf("expected one input and one output, got %d and %d", len(inputs), len(outputs))
	}
	in, ok := s.tensors[inputs[0]]
	if !ok {
		return fmt.Errorf("tensor key is empty: %s", inputs[0])
	}
	s.tensors[outputs[0]] = s.Run(key, in)
	return nil
}

func (s *Store) GetTensor(ctx context.Context, key string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tensors[key]
	if !ok {
		return nil, fmt.Errorf("tensor key is empty: %s", key)
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.tensors, k)
		delete(s.models, k)
	}
	s.Deleted = append(s.Deleted, keys...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// AddModel registers a model directly, bypassing the counters
func (s *Store) AddModel(key string, spec redisai.ModelSpec, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[key] = Model{Spec: spec, Blob: blob}
}

// Model returns the registered model at key
func (s *Store) Model(key string) (Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[key]
	return m, ok
}

// Tensors returns the number of tensors still stored
func (s *Store) Tensors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tensors)
}

// Stores returns the number of StoreModel calls
func (s *Store) Stores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StoreCalls
}
