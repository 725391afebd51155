package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/solestore/api/internal/repositories"
)

// CounterStore implements repositories.CounterRepository in memory.
type CounterStore struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ repositories.CounterRepository = (*CounterStore)(nil)

func NewCounterStore() *CounterStore {
	return &CounterStore{values: make(map[string]int64)}
}

func (s *CounterStore) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if strings.TrimSpace(counterID) == "" || step <= 0 {
		return 0, repositories.NewCounterError(counterID, repositories.CounterErrorInvalidInput, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[counterID] += step
	return s.values[counterID], nil
}
