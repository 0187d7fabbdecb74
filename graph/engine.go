package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/wavegraph/graph/emit"
	"github.com/dshills/wavegraph/graph/store"
)

// Status distinguishes the two successful outcomes of a run.
type Status int

const (
	// StatusTerminal means the run reached END; its checkpoint was removed.
	StatusTerminal Status = iota + 1

	// StatusPaused means the frontier reached an interrupt point; the
	// checkpoint is kept for Resume.
	StatusPaused
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusTerminal:
		return "terminal"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RunResult is returned by Invoke, Resume and Proceed.
type RunResult struct {
	Status   Status
	ThreadID string

	// State is the merged state at the point the run stopped.
	State State

	// Frontier lists the pending nodes when paused. Empty when terminal.
	Frontier []string

	// Waves is the thread's total completed wave count.
	Waves int
}

// Executor drives threads of a Graph wave by wave, persisting a checkpoint
// after every completed wave.
//
// One Executor may serve any number of graphs and threads concurrently. Calls
// on the same thread are protected by the store's compare-and-swap: the
// loser of a race gets a *ConcurrentUpdateError and its wave is not
// persisted.
type Executor struct {
	store store.Store
	cfg   executorConfig
}

// NewExecutor creates an Executor persisting to st.
func NewExecutor(st store.Store, opts ...Option) (*Executor, error) {
	if st == nil {
		return nil, &EngineError{Message: "checkpoint store cannot be nil", Code: "MISSING_STORE"}
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return &Executor{store: st, cfg: cfg}, nil
}

// Invoke starts a thread at the graph's entry point, or continues it from its
// checkpoint if one exists, and runs waves until END, an interrupt point or
// an error.
//
// initial must only contain declared fields; fields it omits take their
// schema defaults. When the thread already has a checkpoint, initial is
// ignored: use Resume to inject input into an existing thread. An empty
// threadID is replaced by a generated one, reported in RunResult.ThreadID.
func (e *Executor) Invoke(ctx context.Context, g *Graph, initial State, threadID string) (RunResult, error) {
	if g == nil {
		return RunResult{}, &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	if threadID == "" {
		threadID = e.cfg.newThreadID()
	}

	cp, err := e.store.Load(ctx, threadID)
	switch {
	case err == nil:
		if err := checkFrontier(g, cp); err != nil {
			return RunResult{}, err
		}
		e.emit(threadID, cp.WaveCount, "", emit.MsgRunStart, map[string]interface{}{"continued": true})
	case errors.Is(err, store.ErrNotFound):
		state, err := g.schema.Initial(initial)
		if err != nil {
			return RunResult{}, err
		}
		cp = store.Checkpoint{
			ThreadID: threadID,
			State:    state,
			Frontier: []string{g.entry},
		}
		e.emit(threadID, 0, "", emit.MsgRunStart, map[string]interface{}{"entry": g.entry})
		if cp, err = e.persist(ctx, cp); err != nil {
			return RunResult{}, err
		}
	default:
		return RunResult{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return e.run(ctx, g, cp, false)
}

// Resume continues a paused thread after merging an external update.
//
// When asNode is set, update is merged as if that node had produced it and
// control moves on to the node's successors (its static edges, or its router
// evaluated on the merged state) without running the node. asNode must be
// pending in the thread's frontier, so repeating a successful Resume fails
// with *ResumeError instead of applying the update twice.
//
// When asNode is empty, update (if any) is merged as a plain external write
// and the stored frontier is re-entered unchanged. A frontier that still
// contains an interrupt point pauses again, so repeated calls without new
// input return identical results without running any node.
//
// Resume does not count as a wave.
func (e *Executor) Resume(ctx context.Context, g *Graph, threadID string, update Update, asNode string) (RunResult, error) {
	cp, err := e.prepareResume(ctx, g, threadID, update, asNode)
	if err != nil {
		return RunResult{}, err
	}
	if len(cp.Frontier) == 0 {
		return e.finish(ctx, cp)
	}
	return e.run(ctx, g, cp, false)
}

// Proceed merges update as an external write and then runs the pending
// frontier, including nodes marked interrupt-before, for the next wave.
// Later waves honour interrupts as usual.
//
// Use it to approve a pause and let the interrupted node itself consume the
// externally supplied input.
func (e *Executor) Proceed(ctx context.Context, g *Graph, threadID string, update Update) (RunResult, error) {
	cp, err := e.prepareResume(ctx, g, threadID, update, "")
	if err != nil {
		return RunResult{}, err
	}
	return e.run(ctx, g, cp, true)
}

func (e *Executor) prepareResume(ctx context.Context, g *Graph, threadID string, update Update, asNode string) (store.Checkpoint, error) {
	if g == nil {
		return store.Checkpoint{}, &EngineError{Message: "graph cannot be nil", Code: "MISSING_GRAPH"}
	}
	cp, err := e.load(ctx, threadID)
	if err != nil {
		return store.Checkpoint{}, err
	}
	if err := checkFrontier(g, cp); err != nil {
		return store.Checkpoint{}, err
	}

	if asNode != "" {
		if !g.HasNode(asNode) {
			return store.Checkpoint{}, &ResumeError{ThreadID: threadID, AsNode: asNode, Message: "not a registered node"}
		}
		if !slices.Contains(cp.Frontier, asNode) {
			return store.Checkpoint{}, &ResumeError{ThreadID: threadID, AsNode: asNode, Message: "node is not pending in the frontier"}
		}
	}
	if len(update) == 0 && asNode == "" {
		return cp, nil
	}

	merged, err := g.schema.Merge(State(cp.State), update)
	if err != nil {
		return store.Checkpoint{}, err
	}

	next := cp
	next.State = merged
	if asNode != "" {
		targets, err := g.successors(asNode, merged, cp.WaveCount)
		if err != nil {
			e.emit(threadID, cp.WaveCount, asNode, emit.MsgRouterError, map[string]interface{}{"error": err.Error()})
			return store.Checkpoint{}, err
		}
		remaining := slices.DeleteFunc(slices.Clone(cp.Frontier), func(n string) bool { return n == asNode })
		next.Frontier = g.normalize(append(remaining, targets...))
		next.LastWave = []string{asNode}
	}

	e.emit(threadID, cp.WaveCount, asNode, emit.MsgResume, map[string]interface{}{
		"fields":   sortedKeys(update),
		"frontier": next.Frontier,
	})

	if len(next.Frontier) == 0 {
		return next, nil
	}
	return e.persist(ctx, next)
}

// GetSnapshot returns the thread's latest checkpoint without modifying it.
func (e *Executor) GetSnapshot(ctx context.Context, threadID string) (Snapshot, error) {
	cp, err := e.load(ctx, threadID)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(cp), nil
}

// Discard cancels a thread by deleting its checkpoint. Later calls for the
// thread fail with *NotFoundError.
func (e *Executor) Discard(ctx context.Context, threadID string) error {
	if err := e.store.Delete(ctx, threadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{ThreadID: threadID}
		}
		return fmt.Errorf("failed to discard thread %s: %w", threadID, err)
	}
	return nil
}

// checkFrontier rejects a checkpoint pending on nodes g does not register,
// as happens when a thread is continued with a different or renamed graph.
func checkFrontier(g *Graph, cp store.Checkpoint) error {
	var unknown []string
	for _, name := range cp.Frontier {
		if !g.HasNode(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return &EngineError{
		Message: fmt.Sprintf("thread %s is pending on nodes the graph does not register: %s",
			cp.ThreadID, strings.Join(unknown, ", ")),
		Code: "UNKNOWN_FRONTIER_NODE",
	}
}

// run executes waves from cp until the thread pauses, terminates or fails.
// cp has already been persisted.
func (e *Executor) run(ctx context.Context, g *Graph, cp store.Checkpoint, skipInterrupt bool) (RunResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		if len(cp.Frontier) == 0 {
			return e.finish(ctx, cp)
		}

		if !skipInterrupt {
			if hit := g.interrupted(cp.Frontier); len(hit) > 0 {
				for _, name := range hit {
					e.cfg.metrics.IncrementInterrupts(name)
				}
				e.cfg.metrics.RecordOutcome(OutcomePaused)
				e.emit(cp.ThreadID, cp.WaveCount, "", emit.MsgInterrupt, map[string]interface{}{
					"frontier":  cp.Frontier,
					"interrupt": hit,
				})
				return RunResult{
					Status:   StatusPaused,
					ThreadID: cp.ThreadID,
					State:    State(cp.State).Clone(),
					Frontier: slices.Clone(cp.Frontier),
					Waves:    cp.WaveCount,
				}, nil
			}
		}
		skipInterrupt = false

		if cp.WaveCount >= e.cfg.safetyCeiling {
			e.cfg.metrics.RecordOutcome(OutcomeCeilingExceeded)
			e.emit(cp.ThreadID, cp.WaveCount, "", emit.MsgCeilingExceeded, map[string]interface{}{
				"ceiling":  e.cfg.safetyCeiling,
				"frontier": cp.Frontier,
			})
			return RunResult{}, &SafetyCeilingError{
				ThreadID: cp.ThreadID,
				Ceiling:  e.cfg.safetyCeiling,
				Waves:    cp.WaveCount,
				State:    State(cp.State).Clone(),
				Frontier: slices.Clone(cp.Frontier),
			}
		}

		next, err := e.wave(ctx, g, cp)
		if err != nil {
			return RunResult{}, err
		}
		if len(next.Frontier) == 0 {
			return e.finish(ctx, next)
		}
		if cp, err = e.persist(ctx, next); err != nil {
			return RunResult{}, err
		}
	}
}

// wave runs one wave and returns the checkpoint it would produce. Nothing is
// persisted here: on error the stored checkpoint is still the pre-wave one.
func (e *Executor) wave(ctx context.Context, g *Graph, cp store.Checkpoint) (store.Checkpoint, error) {
	waveNum := cp.WaveCount + 1
	frontier := cp.Frontier
	state := State(cp.State)
	start := time.Now()

	e.cfg.metrics.UpdateFrontierSize(len(frontier))
	e.emit(cp.ThreadID, waveNum, "", emit.MsgWaveStart, map[string]interface{}{"frontier": frontier})

	updates, err := e.dispatch(ctx, g, cp.ThreadID, waveNum, state, frontier)
	if err != nil {
		e.cfg.metrics.RecordWave(time.Since(start), "error")
		e.cfg.metrics.RecordOutcome(OutcomeNodeError)
		return store.Checkpoint{}, err
	}

	// Frontier order is registration order, so later-registered nodes win
	// same-field Replace collisions.
	merged, err := g.schema.Merge(state, updates...)
	if err != nil {
		e.cfg.metrics.RecordWave(time.Since(start), "error")
		return store.Checkpoint{}, err
	}

	nextFrontier, err := g.nextFrontier(frontier, merged, waveNum)
	if err != nil {
		e.cfg.metrics.RecordWave(time.Since(start), "error")
		e.cfg.metrics.RecordOutcome(OutcomeRouterError)
		e.emit(cp.ThreadID, waveNum, "", emit.MsgRouterError, map[string]interface{}{"error": err.Error()})
		return store.Checkpoint{}, err
	}

	e.cfg.metrics.RecordWave(time.Since(start), "success")
	e.emit(cp.ThreadID, waveNum, "", emit.MsgWaveEnd, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
		"frontier":    nextFrontier,
	})

	return store.Checkpoint{
		ThreadID:  cp.ThreadID,
		State:     merged,
		Frontier:  nextFrontier,
		WaveCount: waveNum,
		LastWave:  slices.Clone(frontier),
		Seq:       cp.Seq,
	}, nil
}

// dispatch runs every frontier node against its own copy of state and
// returns their updates in frontier order. All nodes are awaited even when
// one fails; the first failure in frontier order is reported.
func (e *Executor) dispatch(ctx context.Context, g *Graph, threadID string, waveNum int, state State, frontier []string) ([]Update, error) {
	updates := make([]Update, len(frontier))
	errs := make([]error, len(frontier))

	var eg errgroup.Group
	if e.cfg.maxConcurrent > 0 {
		eg.SetLimit(e.cfg.maxConcurrent)
	}
	for i, name := range frontier {
		node := g.nodes[name]
		view := state.Clone()
		eg.Go(func() error {
			updates[i], errs[i] = e.runNode(ctx, g, threadID, waveNum, node, view)
			return nil
		})
	}
	_ = eg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &NodeExecutionError{Node: frontier[i], Wave: waveNum, Cause: err}
		}
	}
	return updates, nil
}

func (e *Executor) runNode(ctx context.Context, g *Graph, threadID string, waveNum int, node *registeredNode, view State) (Update, error) {
	e.cfg.metrics.AddInflightNodes(1)
	defer e.cfg.metrics.AddInflightNodes(-1)

	e.emit(threadID, waveNum, node.name, emit.MsgNodeStart, nil)
	start := time.Now()

	update, err := executeNode(ctx, node.fn, node.name, view, e.cfg.nodeTimeout)
	if err == nil {
		err = g.schema.Validate(update)
	}
	elapsed := time.Since(start)

	if err != nil {
		e.cfg.metrics.RecordNodeLatency(node.name, elapsed, "error")
		e.emit(threadID, waveNum, node.name, emit.MsgNodeError, map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		})
		return nil, err
	}

	e.cfg.metrics.RecordNodeLatency(node.name, elapsed, "success")
	e.emit(threadID, waveNum, node.name, emit.MsgNodeEnd, map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
		"fields":      sortedKeys(update),
	})
	return update, nil
}

// finish completes a thread that reached END and removes its checkpoint.
func (e *Executor) finish(ctx context.Context, cp store.Checkpoint) (RunResult, error) {
	if err := e.store.Delete(ctx, cp.ThreadID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return RunResult{}, fmt.Errorf("failed to remove finished thread %s: %w", cp.ThreadID, err)
	}
	e.cfg.metrics.RecordOutcome(OutcomeTerminal)
	e.emit(cp.ThreadID, cp.WaveCount, "", emit.MsgTerminal, nil)
	return RunResult{
		Status:   StatusTerminal,
		ThreadID: cp.ThreadID,
		State:    State(cp.State).Clone(),
		Frontier: []string{},
		Waves:    cp.WaveCount,
	}, nil
}

// persist saves cp as the revision following cp.Seq and returns what was
// stored.
func (e *Executor) persist(ctx context.Context, cp store.Checkpoint) (store.Checkpoint, error) {
	cp.Seq++
	cp.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, cp); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.cfg.metrics.RecordOutcome(OutcomeConflict)
			return store.Checkpoint{}, &ConcurrentUpdateError{ThreadID: cp.ThreadID, Cause: err}
		}
		return store.Checkpoint{}, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	e.emit(cp.ThreadID, cp.WaveCount, "", emit.MsgCheckpointSaved, map[string]interface{}{
		"seq":      cp.Seq,
		"frontier": cp.Frontier,
	})
	return cp, nil
}

func (e *Executor) load(ctx context.Context, threadID string) (store.Checkpoint, error) {
	cp, err := e.store.Load(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Checkpoint{}, &NotFoundError{ThreadID: threadID}
	}
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

func (e *Executor) emit(threadID string, wave int, nodeID, msg string, meta map[string]interface{}) {
	e.cfg.emitter.Emit(emit.Event{
		ThreadID: threadID,
		Wave:     wave,
		NodeID:   nodeID,
		Msg:      msg,
		Meta:     meta,
	})
}
