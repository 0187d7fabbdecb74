package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dshills/wavegraph/graph/store"
)

// Snapshot is a read-only view of a thread's latest checkpoint.
type Snapshot struct {
	ThreadID string

	// State is a copy of the merged state; modifying it has no effect on
	// the thread.
	State State

	// Frontier lists the nodes the next wave would run, in registration order.
	Frontier []string

	// WaveCount is the number of waves the thread has completed.
	WaveCount int

	// LastWave lists the nodes of the most recently completed wave, or the
	// node a Resume acted as.
	LastWave []string

	// Revision is the checkpoint's compare-and-swap sequence number.
	Revision int64

	UpdatedAt time.Time
}

func snapshotOf(cp store.Checkpoint) Snapshot {
	return Snapshot{
		ThreadID:  cp.ThreadID,
		State:     State(cp.State).Clone(),
		Frontier:  slices.Clone(cp.Frontier),
		WaveCount: cp.WaveCount,
		LastWave:  slices.Clone(cp.LastWave),
		Revision:  cp.Seq,
		UpdatedAt: cp.UpdatedAt,
	}
}

// Digest returns a stable content hash of the snapshot's state, frontier and
// wave count, formatted as "sha256:<hex>". Two snapshots with equal digests
// describe the same point of execution, which makes it suitable for
// detecting whether a thread moved between two observations.
func (s Snapshot) Digest() string {
	h := sha256.New()
	// encoding/json sorts map keys, so the encoding is deterministic.
	payload, err := json.Marshal(struct {
		State     State    `json:"state"`
		Frontier  []string `json:"frontier"`
		WaveCount int      `json:"wave_count"`
	}{s.State, s.Frontier, s.WaveCount})
	if err != nil {
		// State holding values JSON cannot encode; fmt also prints maps sorted.
		payload = fmt.Appendf(nil, "%v|%v|%d", s.State, s.Frontier, s.WaveCount)
	}
	h.Write(payload)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
