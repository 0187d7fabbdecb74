// Package graph provides the wave-based graph execution engine.
package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/dshills/wavegraph/graph/store"
)

// MergePolicy determines how a node's write to a field combines with the
// value already held in state.
type MergePolicy int

const (
	// Replace overwrites the previous value.
	Replace MergePolicy = iota

	// Append treats the field as an ordered sequence. Each write's elements
	// are concatenated after the existing ones, preserving write order.
	Append
)

// String returns the policy name.
func (p MergePolicy) String() string {
	switch p {
	case Replace:
		return "REPLACE"
	case Append:
		return "APPEND"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Field declares one state field and its merge policy.
//
// Default is the value the field holds before any write. For Append fields
// a nil Default means an empty sequence.
type Field struct {
	Name    string
	Policy  MergePolicy
	Default any
}

// State maps declared field names to values.
//
// Values read back from a durable store have passed through JSON, so numbers
// may arrive as float64 and sequences as []any. The typed accessors below
// hide that difference from nodes and routers.
type State map[string]any

// Update is a partial state produced by a node or supplied on resume.
// Every key must be a declared field.
type Update map[string]any

// Schema is the fixed set of fields a graph's state may hold.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema validates the field declarations and returns a Schema.
//
// Field names must be non-empty, unique and must not collide with END.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	var errs []error
	for _, f := range fields {
		switch {
		case strings.TrimSpace(f.Name) == "":
			errs = append(errs, definitionErr(CodeInvalidField, "field name cannot be empty"))
			continue
		case f.Name == END:
			errs = append(errs, definitionErr(CodeReservedName, "field name %q is reserved", f.Name))
			continue
		case f.Policy != Replace && f.Policy != Append:
			errs = append(errs, definitionErr(CodeInvalidField, "field %q has unknown merge policy %d", f.Name, f.Policy))
			continue
		}
		if _, dup := s.fields[f.Name]; dup {
			errs = append(errs, definitionErr(CodeDuplicateField, "field %q declared twice", f.Name))
			continue
		}
		if f.Policy == Append && f.Default != nil {
			seq, ok := toSequence(f.Default)
			if !ok {
				errs = append(errs, definitionErr(CodeInvalidField, "append field %q default must be a slice", f.Name))
				continue
			}
			f.Default = seq
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	if len(errs) > 0 {
		return nil, joinDefinitionErrors(errs)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for
// package-level graph declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Policy reports the merge policy of a field and whether it is declared.
func (s *Schema) Policy(name string) (MergePolicy, bool) {
	f, ok := s.fields[name]
	return f.Policy, ok
}

// Validate checks that every key of u is a declared field and that writes
// to Append fields are sequences.
func (s *Schema) Validate(u Update) error {
	for _, key := range sortedKeys(u) {
		f, ok := s.fields[key]
		if !ok {
			return &UnknownFieldError{Field: key}
		}
		if f.Policy == Append && u[key] != nil {
			if _, ok := toSequence(u[key]); !ok {
				return &FieldTypeError{Field: key, Policy: f.Policy, Value: u[key]}
			}
		}
	}
	return nil
}

// Initial returns the starting state for a new thread: every field at its
// default, overlaid with the supplied values. Keys of initial are validated
// exactly like an update.
func (s *Schema) Initial(initial State) (State, error) {
	if err := s.Validate(Update(initial)); err != nil {
		return nil, err
	}
	out := make(State, len(s.order))
	for _, name := range s.order {
		f := s.fields[name]
		switch f.Policy {
		case Append:
			seq, _ := toSequence(f.Default)
			if v, ok := initial[name]; ok {
				seq, _ = toSequence(v)
			}
			out[name] = seq
		default:
			out[name] = f.Default
			if v, ok := initial[name]; ok {
				out[name] = v
			}
		}
	}
	return out, nil
}

// Merge applies updates to a copy of state in the given order. Replace
// fields take the last written value, Append fields accumulate every write.
// The input state is never modified.
func (s *Schema) Merge(state State, updates ...Update) (State, error) {
	out := state.Clone()
	if out == nil {
		out = make(State)
	}
	for _, u := range updates {
		if err := s.Validate(u); err != nil {
			return nil, err
		}
		for _, key := range sortedKeys(u) {
			v := u[key]
			if s.fields[key].Policy == Replace {
				out[key] = v
				continue
			}
			add, _ := toSequence(v)
			prev, _ := toSequence(out[key])
			merged := make([]any, 0, len(prev)+len(add))
			merged = append(merged, prev...)
			merged = append(merged, add...)
			out[key] = merged
		}
	}
	return out, nil
}

// Clone returns a deep copy of the state. Maps, slices and arrays are copied
// recursively, so a node may modify its view without affecting the thread or
// its siblings. Struct values are copied shallowly and pointers are shared;
// data reachable through them must be treated as read-only.
func (s State) Clone() State {
	return State(store.CloneState(s))
}

// Get returns the raw value of a field.
func (s State) Get(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// String returns a string field, or "" if absent or not a string.
func (s State) String(name string) string {
	v, _ := s[name].(string)
	return v
}

// Int returns an integer field. JSON-decoded numbers are accepted; absent or
// non-numeric values return 0.
func (s State) Int(name string) int {
	switch v := s[name].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// Bool returns a boolean field, or false.
func (s State) Bool(name string) bool {
	v, _ := s[name].(bool)
	return v
}

// List returns an Append field (or any slice-valued field) as []any.
func (s State) List(name string) []any {
	seq, _ := toSequence(s[name])
	return seq
}

// toSequence normalizes any slice or array value to []any. A nil value is
// the empty sequence. Byte slices and arrays are rejected: they hold one
// blob, not a list of elements.
func toSequence(v any) ([]any, bool) {
	if v == nil {
		return []any{}, true
	}
	if seq, ok := v.([]any); ok {
		out := make([]any, len(seq))
		copy(out, seq)
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
