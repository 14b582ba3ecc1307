// Package memory turns the stored turn log into prompt-ready conversation
// history under a fixed recency window.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"claims-agent/internal/domain"
)

const (
	DefaultMaxTurns = 3
	DefaultMaxAge   = 15 * time.Minute
)

// Store is the read side of the turn log.
type Store interface {
	Recent(ctx context.Context, policyNumber string, maxCount int, maxAge time.Duration) ([]domain.Turn, error)
}

// Window bounds how much history is retrieved per turn.
type Window struct {
	MaxTurns int
	MaxAge   time.Duration
}

// DefaultWindow treats a gap longer than fifteen minutes as a new conversation.
func DefaultWindow() Window {
	return Window{MaxTurns: DefaultMaxTurns, MaxAge: DefaultMaxAge}
}

type Retriever struct {
	store  Store
	window Window
}

func NewRetriever(store Store, window Window) (*Retriever, error) {
	if store == nil {
		return nil, errors.New("memory: store must not be nil")
	}
	if window.MaxTurns <= 0 {
		window.MaxTurns = DefaultMaxTurns
	}
	if window.MaxAge <= 0 {
		window.MaxAge = DefaultMaxAge
	}
	return &Retriever{store: store, window: window}, nil
}

func (r *Retriever) Window() Window { return r.window }

// Retrieve returns the policy's recent history flattened to alternating
// query/response strings, oldest first. No qualifying history yields nil.
func (r *Retriever) Retrieve(ctx context.Context, policyNumber string) ([]string, error) {
	turns, err := r.store.Recent(ctx, policyNumber, r.window.MaxTurns, r.window.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve: %w", err)
	}
	return Flatten(turns), nil
}

// Flatten converts turns into [query0, response0, query1, response1, ...].
func Flatten(turns []domain.Turn) []string {
	if len(turns) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out, t.Query, t.Response)
	}
	return out
}
