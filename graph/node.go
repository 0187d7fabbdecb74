package graph

import "context"

// Node represents a processing unit in the graph.
//
// A node receives an immutable view of the merged state as of the start of
// its wave and returns a partial update. The view is a deep copy (see
// State.Clone), and nodes in the same wave never see each other's output. A node may perform arbitrary external effects; the
// engine only cares about the returned update or error.
//
// The engine never retries a failed node. Retry policies belong in state
// (for example a counter field) interpreted by a later routing decision.
type Node interface {
	// Run executes the node's logic. Returning a non-nil error discards the
	// whole wave, and the run fails with a *NodeExecutionError naming the node.
	Run(ctx context.Context, state State) (Update, error)
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	inc := graph.NodeFunc(func(ctx context.Context, s graph.State) (graph.Update, error) {
//	    return graph.Update{"counter": s.Int("counter") + 1}, nil
//	})
type NodeFunc func(ctx context.Context, state State) (Update, error)

// Run implements the Node interface for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, state State) (Update, error) {
	return f(ctx, state)
}

// NodeKind tags a registered node as plain or conditional.
type NodeKind int

const (
	// Plain nodes follow their static edges after running.
	Plain NodeKind = iota

	// Conditional nodes follow the labels chosen by their router, evaluated
	// against the state merged at the end of their wave.
	Conditional
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Conditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// NodeError represents an error that occurred during node execution.
// It provides structured error information for better observability and debugging.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// registeredNode is one entry of the node registry.
type registeredNode struct {
	name  string
	kind  NodeKind
	fn    Node
	index int
}
