package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (*State, error) {
	m.mu.RLock()
	raw, ok := m.states[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	state := &State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

func (m *MemoryStore) Put(ctx context.Context, key Key, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	m.mu.Lock()
	m.states[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	delete(m.states, key)
	m.mu.Unlock()
	return nil
}
