package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Checkpoints are copied on the way in and out, so callers can keep mutating
// the values they saved without affecting what Load returns. Values are kept
// with their original Go types (no JSON round trip).
//
// Designed for tests, single-process deployments and short-lived threads.
// Data is lost when the process exits unless exported with MarshalJSON.
type MemStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{checkpoints: make(map[string]Checkpoint)}
}

// Load implements Store.
func (m *MemStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[threadID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp.Clone(), nil
}

// Save implements Store.
func (m *MemStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(cp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if prev, ok := m.checkpoints[cp.ThreadID]; ok {
		stored = prev.Seq
	}
	if err := checkRevision(cp.ThreadID, stored, cp.Seq); err != nil {
		return err
	}
	m.checkpoints[cp.ThreadID] = cp.Clone()
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.checkpoints[threadID]; !ok {
		return ErrNotFound
	}
	delete(m.checkpoints, threadID)
	return nil
}

// Threads returns the identifiers of all stored threads.
func (m *MemStore) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.checkpoints))
	for id := range m.checkpoints {
		out = append(out, id)
	}
	return out
}

// MarshalJSON exports all checkpoints, keyed by thread id.
func (m *MemStore) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.checkpoints)
}

// UnmarshalJSON replaces the store contents with previously exported data.
func (m *MemStore) UnmarshalJSON(data []byte) error {
	var checkpoints map[string]Checkpoint
	if err := json.Unmarshal(data, &checkpoints); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoints: %w", err)
	}
	if checkpoints == nil {
		checkpoints = make(map[string]Checkpoint)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = checkpoints
	return nil
}
