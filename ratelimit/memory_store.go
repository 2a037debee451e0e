package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-mastodon/core"
)

// MemoryStateStore keeps bucket state in process. State is lost on restart;
// use store/sql for throttling that outlives the process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[core.RateLimitKey]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[core.RateLimitKey]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	state, ok := s.items[NormalizeKey(key)]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMetadata(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = NormalizeKey(state.Key)
	state.Metadata = cloneMetadata(state.Metadata)
	s.mu.Lock()
	s.items[state.Key] = state
	s.mu.Unlock()
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
