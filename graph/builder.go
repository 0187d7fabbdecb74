package graph

import (
	"strings"
)

// Builder declares nodes, edges, the entry point and interrupt points, and
// produces an immutable Graph.
//
// Each method checks what it can locally and returns an error, which is also
// recorded so that Build reports it even if the caller ignored it. Cross
// references (edge endpoints, entry, interrupts) are only checked by Build,
// so declarations may appear in any order.
//
// Example:
//
//	b := graph.NewBuilder(schema)
//	_ = b.AddNode("architect", architect)
//	_ = b.AddNode("frontend", frontend)
//	_ = b.AddConditionalNode("reflector", reflector)
//	_ = b.AddEdge("architect", "frontend")
//	_ = b.AddEdge("frontend", "reflector")
//	_ = b.AddConditionalEdge("reflector", route, map[string]string{
//	    "frontend": "frontend",
//	    "done":     graph.END,
//	})
//	_ = b.SetEntry("architect")
//	_ = b.SetInterruptBefore("reflector")
//	g, err := b.Build()
type Builder struct {
	schema     *Schema
	nodes      map[string]*registeredNode
	order      []string
	edges      []Edge
	cond       map[string]*ConditionalEdge
	condOrder  []string
	entry      string
	interrupts []string
	errs       []error
}

// NewBuilder creates a Builder for graphs over the given schema.
func NewBuilder(schema *Schema) *Builder {
	return &Builder{
		schema: schema,
		nodes:  make(map[string]*registeredNode),
		cond:   make(map[string]*ConditionalEdge),
	}
}

func (b *Builder) record(err *GraphDefinitionError) error {
	b.errs = append(b.errs, err)
	return err
}

// RegisterNode adds a node of the given kind. Names must be unique, non-empty
// and different from END.
func (b *Builder) RegisterNode(name string, kind NodeKind, fn Node) error {
	switch {
	case strings.TrimSpace(name) == "":
		return b.record(definitionErr(CodeInvalidNode, "node name cannot be empty"))
	case name == END:
		return b.record(definitionErr(CodeReservedName, "node name %q is reserved", name))
	case fn == nil:
		return b.record(definitionErr(CodeInvalidNode, "node %s: function cannot be nil", name))
	case kind != Plain && kind != Conditional:
		return b.record(definitionErr(CodeInvalidNode, "node %s: unknown kind %d", name, kind))
	}
	if _, exists := b.nodes[name]; exists {
		return b.record(definitionErr(CodeDuplicateNode, "duplicate node name: %s", name))
	}
	b.nodes[name] = &registeredNode{name: name, kind: kind, fn: fn, index: len(b.order)}
	b.order = append(b.order, name)
	return nil
}

// AddNode registers a plain node.
func (b *Builder) AddNode(name string, fn Node) error {
	return b.RegisterNode(name, Plain, fn)
}

// AddConditionalNode registers a conditional node. It must later receive
// exactly one conditional edge.
func (b *Builder) AddConditionalNode(name string, fn Node) error {
	return b.RegisterNode(name, Conditional, fn)
}

// AddEdge adds a static edge from a plain node. The target may be END.
func (b *Builder) AddEdge(from, to string) error {
	if from == "" || to == "" {
		return b.record(definitionErr(CodeInvalidNode, "edge endpoints cannot be empty (%q -> %q)", from, to))
	}
	if from == END {
		return b.record(definitionErr(CodeReservedName, "edge cannot start at END"))
	}
	b.edges = append(b.edges, Edge{From: from, To: to})
	return nil
}

// AddConditionalEdge attaches a router and its label table to a conditional
// node. Targets may be END. The table is copied.
func (b *Builder) AddConditionalEdge(from string, router RouterFunc, labels map[string]string, opts ...EdgeOption) error {
	if from == "" || from == END {
		return b.record(definitionErr(CodeInvalidNode, "conditional edge source %q is invalid", from))
	}
	if router == nil {
		return b.record(definitionErr(CodeInvalidNode, "conditional edge from %s: router cannot be nil", from))
	}
	if _, exists := b.cond[from]; exists {
		return b.record(definitionErr(CodeDuplicateRouter, "node %s already has a conditional edge", from))
	}
	ce := &ConditionalEdge{From: from, Router: router, Labels: make(map[string]string, len(labels))}
	for label, to := range labels {
		ce.Labels[label] = to
	}
	for _, opt := range opts {
		opt(ce)
	}
	b.cond[from] = ce
	b.condOrder = append(b.condOrder, from)
	return nil
}

// SetEntry sets the node that forms the first frontier of a new thread.
func (b *Builder) SetEntry(name string) error {
	if name == "" || name == END {
		return b.record(definitionErr(CodeMissingEntry, "entry %q is invalid", name))
	}
	b.entry = name
	return nil
}

// SetInterruptBefore marks nodes before which execution pauses. Calls
// accumulate.
func (b *Builder) SetInterruptBefore(names ...string) error {
	for _, name := range names {
		if name == "" || name == END {
			return b.record(definitionErr(CodeInvalidNode, "interrupt node %q is invalid", name))
		}
	}
	b.interrupts = append(b.interrupts, names...)
	return nil
}

// Build validates the declarations and returns an immutable Graph. All
// problems are reported together, joined with errors.Join. Build does not
// modify the Builder and may be called repeatedly.
func (b *Builder) Build() (*Graph, error) {
	errs := append([]error(nil), b.errs...)

	if b.schema == nil {
		errs = append(errs, definitionErr(CodeMissingSchema, "graph has no state schema"))
	}

	known := func(name string) bool {
		if name == END {
			return true
		}
		_, ok := b.nodes[name]
		return ok
	}

	static := make(map[string][]string)
	seen := make(map[Edge]bool)
	for _, e := range b.edges {
		src, ok := b.nodes[e.From]
		switch {
		case !ok:
			errs = append(errs, definitionErr(CodeUnknownNode, "edge %s -> %s: unknown source", e.From, e.To))
			continue
		case src.kind != Plain:
			errs = append(errs, definitionErr(CodeKindMismatch, "edge %s -> %s: static edges require a plain source", e.From, e.To))
			continue
		case !known(e.To):
			errs = append(errs, definitionErr(CodeUnknownNode, "edge %s -> %s: unknown target", e.From, e.To))
			continue
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		static[e.From] = append(static[e.From], e.To)
	}

	cond := make(map[string]*ConditionalEdge, len(b.cond))
	for _, from := range b.condOrder {
		ce := b.cond[from]
		src, ok := b.nodes[from]
		switch {
		case !ok:
			errs = append(errs, definitionErr(CodeUnknownNode, "conditional edge from unknown node %s", from))
			continue
		case src.kind != Conditional:
			errs = append(errs, definitionErr(CodeKindMismatch, "node %s is plain but has a conditional edge", from))
			continue
		case len(ce.Labels) == 0 && !ce.HasDefault:
			errs = append(errs, definitionErr(CodeEmptyLabelTable, "conditional edge from %s has no labels and no default", from))
			continue
		}
		for _, label := range sortedKeys(ce.Labels) {
			if to := ce.Labels[label]; !known(to) {
				errs = append(errs, definitionErr(CodeUnknownNode, "conditional edge from %s: label %q targets unknown node %s", from, label, to))
			}
		}
		if ce.HasDefault && !known(ce.Default) {
			errs = append(errs, definitionErr(CodeUnknownNode, "conditional edge from %s: default targets unknown node %s", from, ce.Default))
		}
		copied := *ce
		copied.Labels = make(map[string]string, len(ce.Labels))
		for k, v := range ce.Labels {
			copied.Labels[k] = v
		}
		cond[from] = &copied
	}

	nodes := make(map[string]*registeredNode, len(b.nodes))
	for _, name := range b.order {
		n := *b.nodes[name]
		nodes[name] = &n
		if n.kind == Conditional {
			if _, ok := b.cond[name]; !ok {
				errs = append(errs, definitionErr(CodeMissingRouter, "conditional node %s has no conditional edge", name))
			}
		}
	}

	switch {
	case b.entry == "":
		errs = append(errs, definitionErr(CodeMissingEntry, "entry node not set"))
	case !known(b.entry) || b.entry == END:
		errs = append(errs, definitionErr(CodeMissingEntry, "entry node %s is not registered", b.entry))
	}

	interrupts := make(map[string]bool, len(b.interrupts))
	for _, name := range b.interrupts {
		if _, ok := b.nodes[name]; !ok {
			errs = append(errs, definitionErr(CodeUnknownNode, "interrupt before unknown node %s", name))
			continue
		}
		interrupts[name] = true
	}

	if err := joinDefinitionErrors(errs); err != nil {
		return nil, err
	}

	return &Graph{
		schema:     b.schema,
		nodes:      nodes,
		order:      append([]string(nil), b.order...),
		static:     static,
		cond:       cond,
		entry:      b.entry,
		interrupts: interrupts,
	}, nil
}
