package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/chatgraph/core"
)

// Store persists one conversation state per thread.
//
// Clear resets a thread to the initial state rather than deleting the key,
// so a Load after Clear sees a fresh state instead of "absent" and clearing
// an unknown thread is a safe no-op.
type Store interface {
	// Load returns the persisted state for the thread; found is false when
	// the thread has never been saved or cleared.
	Load(ctx context.Context, threadID string) (state core.State, found bool, err error)
	// Save overwrites the persisted state for the thread.
	Save(ctx context.Context, threadID string, state core.State) error
	// Clear resets the thread to the initial state. Idempotent.
	Clear(ctx context.Context, threadID string) error
}

type checkpoint struct {
	state     core.State
	updatedAt time.Time
}

// InMemoryStore keeps checkpoints in a map guarded by a RWMutex. States are
// deep-copied on the way in and out so callers never share slices with the
// stored copy.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]checkpoint
}

// NewInMemoryStore creates an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]checkpoint)}
}

// Load implements Store.
func (s *InMemoryStore) Load(_ context.Context, threadID string) (core.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[threadID]
	if !ok {
		return core.State{}, false, nil
	}
	return cp.state.Clone(), true, nil
}

// Save implements Store.
func (s *InMemoryStore) Save(_ context.Context, threadID string, state core.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[threadID] = checkpoint{state: state.Clone(), updatedAt: time.Now()}
	return nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[threadID] = checkpoint{state: core.InitialState(), updatedAt: time.Now()}
	return nil
}

// Len returns the number of stored threads.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checkpoints)
}
