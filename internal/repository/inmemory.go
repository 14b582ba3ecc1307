package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"claims-agent/internal/domain"
)

// InMemoryStore is a simple in-process turn store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
	now   func() time.Time
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	o := applyOptions(opts)
	return &InMemoryStore{turns: make(map[string][]domain.Turn), now: o.now}
}

func (s *InMemoryStore) Append(_ context.Context, policyNumber, query, response string) error {
	if strings.TrimSpace(policyNumber) == "" {
		return errors.New("repository: Append: policy number is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC()
	arr := s.turns[policyNumber]
	// Keep insertion order and timestamp order aligned if the clock steps back.
	if n := len(arr); n > 0 && createdAt.Before(arr[n-1].CreatedAt) {
		createdAt = arr[n-1].CreatedAt
	}
	s.turns[policyNumber] = append(arr, domain.Turn{
		ID:           uuid.NewString(),
		PolicyNumber: policyNumber,
		Query:        query,
		Response:     response,
		CreatedAt:    createdAt,
	})
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, policyNumber string, maxCount int, maxAge time.Duration) ([]domain.Turn, error) {
	if strings.TrimSpace(policyNumber) == "" {
		return nil, errors.New("repository: Recent: policy number is required")
	}
	if maxCount <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	arr := s.turns[policyNumber]
	cutoff := s.now().UTC().Add(-maxAge)
	out := make([]domain.Turn, 0, maxCount)
	for i := len(arr) - 1; i >= 0 && len(out) < maxCount; i-- {
		if maxAge > 0 && arr[i].CreatedAt.Before(cutoff) {
			break
		}
		out = append(out, arr[i])
	}
	if len(out) == 0 {
		return nil, nil
	}
	reverseTurns(out)
	return out, nil
}

// Len reports how many turns are stored for a policy.
func (s *InMemoryStore) Len(policyNumber string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[policyNumber])
}

func (s *InMemoryStore) Close() error { return nil }
