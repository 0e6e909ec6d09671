// Package session persists flow state between the independently-submitted
// requests of one notification wizard run. Slots are keyed by
// (sessionID, taskID), so starting a second task mid-flow cannot corrupt
// the first task's accumulated answers.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/notifyflow/notifyflow/engine"
)

// Store is the flow-state slot contract. Get returns (nil, nil) for an
// absent slot. Writes are last-write-wins: a single operator is the only
// realistic writer inside one session, so no optimistic locking is applied.
type Store interface {
	Get(ctx context.Context, sessionID string, taskID int) (*engine.FlowState, error)
	Put(ctx context.Context, sessionID string, taskID int, state *engine.FlowState) error
	Clear(ctx context.Context, sessionID string, taskID int) error
}

type slotKey struct {
	session string
	task    int
}

// MemoryStore keeps flow state in-process. Used by tests and single-node
// development; production uses the redis store. State passes through the
// same JSON codec as the redis store so both impls share serialization
// semantics.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[slotKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[slotKey][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string, taskID int) (*engine.FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.slots[slotKey{sessionID, taskID}]
	if !ok {
		return nil, nil
	}
	var state engine.FlowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding flow state: %w", err)
	}
	return &state, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, taskID int, state *engine.FlowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding flow state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slotKey{sessionID, taskID}] = data
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string, taskID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slotKey{sessionID, taskID})
	return nil
}
