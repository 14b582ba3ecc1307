package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"claims-agent/internal/domain"
)

type stubStore struct {
	turns    []domain.Turn
	err      error
	maxCount int
	maxAge   time.Duration
}

func (s *stubStore) Recent(_ context.Context, _ string, maxCount int, maxAge time.Duration) ([]domain.Turn, error) {
	s.maxCount = maxCount
	s.maxAge = maxAge
	return s.turns, s.err
}

func TestNewRetriever_ValidatesStore(t *testing.T) {
	_, err := NewRetriever(nil, DefaultWindow())
	require.Error(t, err)
}

func TestNewRetriever_AppliesDefaults(t *testing.T) {
	r, err := NewRetriever(&stubStore{}, Window{})
	require.NoError(t, err)
	require.Equal(t, 3, r.Window().MaxTurns)
	require.Equal(t, 15*time.Minute, r.Window().MaxAge)
}

func TestRetrieve_PassesWindowAndFlattens(t *testing.T) {
	store := &stubStore{turns: []domain.Turn{
		{Query: "Hello", Response: "Hi there."},
		{Query: "My car was hit", Response: "Sorry to hear that."},
	}}
	r, err := NewRetriever(store, DefaultWindow())
	require.NoError(t, err)

	history, err := r.Retrieve(context.Background(), "P-100")
	require.NoError(t, err)
	require.Equal(t, []string{"Hello", "Hi there.", "My car was hit", "Sorry to hear that."}, history)
	require.Equal(t, 3, store.maxCount)
	require.Equal(t, 15*time.Minute, store.maxAge)
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	r, err := NewRetriever(&stubStore{}, DefaultWindow())
	require.NoError(t, err)
	history, err := r.Retrieve(context.Background(), "P-100")
	require.NoError(t, err)
	require.Nil(t, history)
}

func TestRetrieve_StoreFailure(t *testing.T) {
	r, err := NewRetriever(&stubStore{err: errors.New("connection refused")}, DefaultWindow())
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "P-200")
	require.Error(t, err)
	require.ErrorContains(t, err, "connection refused")
}
