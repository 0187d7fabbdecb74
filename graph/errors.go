package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/wavegraph/graph/store"
)

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can branch with errors.Is without caring about the concrete type.
var (
	// ErrGraphDefinition marks an invalid graph detected while building.
	ErrGraphDefinition = errors.New("invalid graph definition")

	// ErrRouterLabel indicates a router returned a label its table does not
	// map and the conditional edge declares no default.
	ErrRouterLabel = errors.New("router returned unmapped label")

	// ErrNodeExecution indicates a node failed and its wave was discarded.
	ErrNodeExecution = errors.New("node execution failed")

	// ErrSafetyCeiling indicates a thread reached its wave ceiling.
	ErrSafetyCeiling = errors.New("safety ceiling exceeded")

	// ErrThreadNotFound indicates an unknown or discarded thread.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrUnknownField indicates an update referenced an undeclared field.
	ErrUnknownField = errors.New("unknown state field")

	// ErrFieldType indicates a write incompatible with the field's merge policy.
	ErrFieldType = errors.New("invalid value for state field")

	// ErrInvalidResume indicates Resume was called with an unusable asNode.
	ErrInvalidResume = errors.New("invalid resume request")

	// ErrConcurrentUpdate indicates another caller advanced the thread's
	// checkpoint between this caller's load and save.
	ErrConcurrentUpdate = errors.New("concurrent checkpoint update")
)

// Graph definition error codes.
const (
	CodeDuplicateNode   = "DUPLICATE_NODE"
	CodeReservedName    = "RESERVED_NAME"
	CodeInvalidNode     = "INVALID_NODE"
	CodeUnknownNode     = "UNKNOWN_NODE"
	CodeMissingEntry    = "MISSING_ENTRY"
	CodeEmptyLabelTable = "EMPTY_LABEL_TABLE"
	CodeKindMismatch    = "KIND_MISMATCH"
	CodeMissingRouter   = "MISSING_ROUTER"
	CodeDuplicateRouter = "DUPLICATE_ROUTER"
	CodeDuplicateField  = "DUPLICATE_FIELD"
	CodeInvalidField    = "INVALID_FIELD"
	CodeMissingSchema   = "MISSING_SCHEMA"
)

// GraphDefinitionError reports one problem found while declaring or building
// a graph. Build joins several of them with errors.Join; use errors.As to get
// the first, or errors.Is(err, ErrGraphDefinition) to detect any.
type GraphDefinitionError struct {
	Code    string
	Message string
}

func (e *GraphDefinitionError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *GraphDefinitionError) Unwrap() error { return ErrGraphDefinition }

func definitionErr(code, format string, args ...any) *GraphDefinitionError {
	return &GraphDefinitionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func joinDefinitionErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// RouterLabelError reports a label that a conditional node's table does not
// map. The run is aborted and the last good checkpoint is kept.
type RouterLabelError struct {
	Node  string
	Label string
	Wave  int
}

func (e *RouterLabelError) Error() string {
	return fmt.Sprintf("node %s: router returned label %q with no mapping and no default", e.Node, e.Label)
}

func (e *RouterLabelError) Unwrap() error { return ErrRouterLabel }

// NodeExecutionError names the node whose failure discarded a wave.
// It unwraps to both ErrNodeExecution and the node's own error.
type NodeExecutionError struct {
	Node  string
	Wave  int
	Cause error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed in wave %d: %v", e.Node, e.Wave, e.Cause)
}

func (e *NodeExecutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNodeExecution}
	}
	return []error{ErrNodeExecution, e.Cause}
}

// SafetyCeilingError is returned when a thread would run more waves than the
// configured ceiling. State and Frontier describe the retained checkpoint,
// which stays available through GetSnapshot.
type SafetyCeilingError struct {
	ThreadID string
	Ceiling  int
	Waves    int
	State    State
	Frontier []string
}

func (e *SafetyCeilingError) Error() string {
	return fmt.Sprintf("thread %s: safety ceiling of %d waves reached (pending: %s)",
		e.ThreadID, e.Ceiling, strings.Join(e.Frontier, ","))
}

func (e *SafetyCeilingError) Unwrap() error { return ErrSafetyCeiling }

// NotFoundError reports a thread with no checkpoint, either never started,
// already terminated or discarded.
type NotFoundError struct {
	ThreadID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("thread %s: no checkpoint", e.ThreadID)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrThreadNotFound, store.ErrNotFound}
}

// UnknownFieldError reports an update key missing from the schema.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown state field %q", e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// FieldTypeError reports a write that the field's merge policy cannot accept,
// such as a scalar written to an Append field.
type FieldTypeError struct {
	Field  string
	Policy MergePolicy
	Value  any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q (%s) cannot accept value of type %T", e.Field, e.Policy, e.Value)
}

func (e *FieldTypeError) Unwrap() error { return ErrFieldType }

// ResumeError reports a Resume call that names an unusable node.
type ResumeError struct {
	ThreadID string
	AsNode   string
	Message  string
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("thread %s: resume as %q: %s", e.ThreadID, e.AsNode, e.Message)
}

func (e *ResumeError) Unwrap() error { return ErrInvalidResume }

// ConcurrentUpdateError reports a lost compare-and-swap on the thread's
// checkpoint. The caller's wave results were not persisted.
type ConcurrentUpdateError struct {
	ThreadID string
	Cause    error
}

func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("thread %s: checkpoint changed concurrently: %v", e.ThreadID, e.Cause)
}

func (e *ConcurrentUpdateError) Unwrap() []error {
	return []error{ErrConcurrentUpdate, e.Cause}
}

// PanicError wraps a value recovered from a panicking node or router.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// EngineError represents an engine-level failure not tied to a specific
// error category, such as a node timeout.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
