package graph

import (
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sort"
)

// Graph is a validated, immutable graph definition produced by Builder.Build.
// It is safe for concurrent use by any number of executors.
type Graph struct {
	schema     *Schema
	nodes      map[string]*registeredNode
	order      []string
	static     map[string][]string
	cond       map[string]*ConditionalEdge
	entry      string
	interrupts map[string]bool
}

// Schema returns the state schema.
func (g *Graph) Schema() *Schema { return g.schema }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Nodes returns the node names in registration order.
func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

// HasNode reports whether name is a registered node.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Kind returns the kind of a registered node.
func (g *Graph) Kind(name string) (NodeKind, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return 0, false
	}
	return n.kind, true
}

// Interrupts returns the interrupt-before node names in registration order.
func (g *Graph) Interrupts() []string {
	out := make([]string, 0, len(g.interrupts))
	for _, name := range g.order {
		if g.interrupts[name] {
			out = append(out, name)
		}
	}
	return out
}

// Labels returns the label set a conditional node's router may return,
// sorted. It returns nil for plain or unknown nodes.
func (g *Graph) Labels(name string) []string {
	ce, ok := g.cond[name]
	if !ok {
		return nil
	}
	return sortedKeys(ce.Labels)
}

// interrupted returns the frontier members that are interrupt points.
func (g *Graph) interrupted(frontier []string) []string {
	var hit []string
	for _, name := range frontier {
		if g.interrupts[name] {
			hit = append(hit, name)
		}
	}
	return hit
}

// successors computes where control goes after name has run, given the
// state merged at the end of its wave.
func (g *Graph) successors(name string, state State, wave int) (targets []string, err error) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %s", name)
	}
	if n.kind == Plain {
		return g.static[name], nil
	}
	ce := g.cond[name]
	defer func() {
		if r := recover(); r != nil {
			err = &NodeExecutionError{Node: name, Wave: wave, Cause: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	labels := ce.Router(state.Clone())
	return ce.resolve(labels, wave)
}

// nextFrontier unions the successors of every node that ran, in frontier
// order, and normalizes the result. A node reached over several edges is
// scheduled once.
func (g *Graph) nextFrontier(ran []string, state State, wave int) ([]string, error) {
	var targets []string
	for _, name := range ran {
		next, err := g.successors(name, state, wave)
		if err != nil {
			return nil, err
		}
		targets = append(targets, next...)
	}
	return g.normalize(targets), nil
}

// normalize dedupes a set of node names, drops END and orders the rest by
// registration. The result is empty when only END (or nothing) remains.
func (g *Graph) normalize(names []string) []string {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		if name == END {
			continue
		}
		if _, ok := g.nodes[name]; ok {
			set[name] = true
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return g.nodes[out[i]].index < g.nodes[out[j]].index
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
