// Package store provides persistence implementations for thread checkpoints.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a thread.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a save loses the compare-and-swap on the
// checkpoint revision: another writer advanced the thread first.
var ErrConflict = errors.New("checkpoint revision conflict")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Checkpoint is the persisted record of one thread: the merged state and
// pending frontier after the most recently completed wave.
//
// Seq is the revision used for compare-and-swap. The first checkpoint of a
// thread has Seq 1 and every later save must carry exactly the stored Seq
// plus one. WaveCount only advances when a wave completes, so a resume that
// merges an external update bumps Seq without touching WaveCount.
type Checkpoint struct {
	ThreadID  string         `json:"thread_id"`
	State     map[string]any `json:"state"`
	Frontier  []string       `json:"frontier"`
	WaveCount int            `json:"wave_count"`
	LastWave  []string       `json:"last_wave,omitempty"`
	Seq       int64          `json:"seq"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no maps, slices or arrays with c.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.State = CloneState(c.State)
	out.Frontier = append([]string(nil), c.Frontier...)
	out.LastWave = append([]string(nil), c.LastWave...)
	return out
}

// CloneState deep-copies a state map. Maps, slices and arrays are copied
// recursively; struct values are copied shallowly and pointers are shared.
func CloneState(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = cloneValue(reflect.ValueOf(v)).Interface()
	}
	return out
}

func cloneValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := range rv.Len() {
			out.Index(i).Set(cloneValue(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := range rv.Len() {
			out.Index(i).Set(cloneValue(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(cloneValue(rv.Elem()))
		return out
	}
	return rv
}

// Store persists checkpoints keyed by thread identifier.
//
// Implementations must make Save atomic: a reader never observes a partially
// written checkpoint. Save is a compare-and-swap on Seq (see Checkpoint) and
// returns ErrConflict when the stored revision is not cp.Seq-1 (or, for
// Seq 1, when a checkpoint already exists).
//
// All implementations are safe for concurrent use.
type Store interface {
	// Load returns the latest checkpoint of a thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (Checkpoint, error)

	// Save stores cp if its revision follows the stored one.
	Save(ctx context.Context, cp Checkpoint) error

	// Delete removes a thread's checkpoint, or returns ErrNotFound.
	Delete(ctx context.Context, threadID string) error
}

// validate checks the fields every backend relies on.
func validate(cp Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint thread id cannot be empty")
	}
	if cp.Seq < 1 {
		return fmt.Errorf("checkpoint %s: revision must be >= 1, got %d", cp.ThreadID, cp.Seq)
	}
	return nil
}

// checkRevision applies the compare-and-swap rule given the stored revision
// (0 when the thread has no checkpoint).
func checkRevision(threadID string, stored, next int64) error {
	if stored != next-1 {
		return fmt.Errorf("thread %s: stored revision %d, save carries %d: %w", threadID, stored, next, ErrConflict)
	}
	return nil
}
