package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/wavegraph/graph/emit"
)

// DefaultSafetyCeiling is the wave ceiling applied when WithSafetyCeiling is
// not given.
const DefaultSafetyCeiling = 25

// Option is a functional option for configuring an Executor.
//
// Example:
//
//	exec, err := graph.NewExecutor(st,
//	    graph.WithSafetyCeiling(50),
//	    graph.WithMaxConcurrent(4),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	)
type Option func(*executorConfig) error

// executorConfig collects options before they are applied to an Executor.
type executorConfig struct {
	safetyCeiling int
	maxConcurrent int
	nodeTimeout   time.Duration
	emitter       emit.Emitter
	metrics       *PrometheusMetrics
	newThreadID   func() string
}

func defaultConfig() executorConfig {
	return executorConfig{
		safetyCeiling: DefaultSafetyCeiling,
		emitter:       emit.NewNullEmitter(),
		newThreadID:   uuid.NewString,
	}
}

// WithSafetyCeiling bounds the number of waves a thread may run over its
// whole lifetime, across Invoke and every Resume. A thread that has completed
// n waves and still has work pending fails with *SafetyCeilingError instead
// of dispatching wave n+1. The checkpoint is kept, so raising the ceiling and
// resuming continues the thread.
//
// Default: DefaultSafetyCeiling. Must be at least 1.
func WithSafetyCeiling(n int) Option {
	return func(cfg *executorConfig) error {
		if n < 1 {
			return fmt.Errorf("safety ceiling must be >= 1, got %d", n)
		}
		cfg.safetyCeiling = n
		return nil
	}
}

// WithMaxConcurrent limits how many nodes of one wave run at the same time.
// Zero means every frontier node runs in its own goroutine.
func WithMaxConcurrent(n int) Option {
	return func(cfg *executorConfig) error {
		if n < 0 {
			return fmt.Errorf("max concurrent must be >= 0, got %d", n)
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithNodeTimeout cancels a node's context after d. A node that exceeds it
// fails its wave with an EngineError coded NODE_TIMEOUT.
//
// Default: 0 (no timeout).
func WithNodeTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return fmt.Errorf("node timeout must be >= 0, got %v", d)
		}
		cfg.nodeTimeout = d
		return nil
	}
}

// WithEmitter sets the observability event sink. Nil restores the default
// NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *executorConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	exec, _ := graph.NewExecutor(st, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *executorConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithThreadIDFunc sets the generator used when Invoke receives an empty
// thread id. Default: uuid.NewString.
func WithThreadIDFunc(fn func() string) Option {
	return func(cfg *executorConfig) error {
		if fn == nil {
			return fmt.Errorf("thread id func cannot be nil")
		}
		cfg.newThreadID = fn
		return nil
	}
}
