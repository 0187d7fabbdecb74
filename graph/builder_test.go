package graph

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noop(context.Context, State) (Update, error) { return nil, nil }

func route(labels ...string) RouterFunc {
	return func(State) []string { return labels }
}

func TestBuilder_Valid(t *testing.T) {
	b := NewBuilder(MustSchema(Field{Name: "x"}))
	_ = b.AddNode("architect", NodeFunc(noop))
	_ = b.AddNode("frontend", NodeFunc(noop))
	_ = b.AddNode("backend", NodeFunc(noop))
	_ = b.AddConditionalNode("reflector", NodeFunc(noop))
	_ = b.AddEdge("architect", "frontend")
	_ = b.AddEdge("architect", "backend")
	_ = b.AddEdge("architect", "frontend") // duplicate edges collapse
	_ = b.AddEdge("frontend", "reflector")
	_ = b.AddEdge("backend", "reflector")
	_ = b.AddConditionalEdge("reflector", route("done"), map[string]string{
		"frontend": "frontend",
		"backend":  "backend",
		"done":     END,
	})
	_ = b.SetEntry("architect")
	_ = b.SetInterruptBefore("reflector")
	_ = b.SetInterruptBefore("backend")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if g.Entry() != "architect" {
		t.Errorf("Entry = %q", g.Entry())
	}
	if diff := cmp.Diff([]string{"architect", "frontend", "backend", "reflector"}, g.Nodes()); diff != "" {
		t.Errorf("Nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"backend", "reflector"}, g.Interrupts()); diff != "" {
		t.Errorf("Interrupts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"backend", "done", "frontend"}, g.Labels("reflector")); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
	if g.Labels("architect") != nil {
		t.Error("plain node should have no labels")
	}
	if k, ok := g.Kind("reflector"); !ok || k != Conditional {
		t.Errorf("Kind(reflector) = %v, %v", k, ok)
	}
	if _, ok := g.Kind("ghost"); ok {
		t.Error("Kind(ghost) should report false")
	}
	if !g.HasNode("backend") || g.HasNode(END) {
		t.Error("HasNode mismatch")
	}
	if diff := cmp.Diff([]string{"frontend", "backend"}, g.static["architect"]); diff != "" {
		t.Errorf("static edges mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		codes []string
	}{
		{
			name: "duplicate node",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.SetEntry("a")
			},
			codes: []string{CodeDuplicateNode},
		},
		{
			name: "node named END",
			build: func(b *Builder) {
				_ = b.AddNode(END, NodeFunc(noop))
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.SetEntry("a")
			},
			codes: []string{CodeReservedName},
		},
		{
			name: "nil node function",
			build: func(b *Builder) {
				_ = b.AddNode("a", nil)
			},
			codes: []string{CodeInvalidNode, CodeMissingEntry},
		},
		{
			name: "dangling edge target",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddEdge("a", "ghost")
				_ = b.SetEntry("a")
			},
			codes: []string{CodeUnknownNode},
		},
		{
			name: "dangling edge source",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddEdge("ghost", "a")
				_ = b.SetEntry("a")
			},
			codes: []string{CodeUnknownNode},
		},
		{
			name: "missing entry",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
			},
			codes: []string{CodeMissingEntry},
		},
		{
			name: "unregistered entry",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.SetEntry("b")
			},
			codes: []string{CodeMissingEntry},
		},
		{
			name: "empty label table without default",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.AddConditionalEdge("c", route(), map[string]string{})
				_ = b.SetEntry("c")
			},
			codes: []string{CodeEmptyLabelTable},
		},
		{
			name: "label targets unknown node",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.AddConditionalEdge("c", route(), map[string]string{"x": "ghost"})
				_ = b.SetEntry("c")
			},
			codes: []string{CodeUnknownNode},
		},
		{
			name: "default targets unknown node",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.AddConditionalEdge("c", route(), map[string]string{"x": END}, WithDefault("ghost"))
				_ = b.SetEntry("c")
			},
			codes: []string{CodeUnknownNode},
		},
		{
			name: "static edge from conditional node",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.AddConditionalEdge("c", route(), map[string]string{"x": END})
				_ = b.AddEdge("c", END)
				_ = b.SetEntry("c")
			},
			codes: []string{CodeKindMismatch},
		},
		{
			name: "conditional edge from plain node",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddConditionalEdge("a", route(), map[string]string{"x": END})
				_ = b.SetEntry("a")
			},
			codes: []string{CodeKindMismatch},
		},
		{
			name: "conditional node without router",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.SetEntry("c")
			},
			codes: []string{CodeMissingRouter},
		},
		{
			name: "second conditional edge",
			build: func(b *Builder) {
				_ = b.AddConditionalNode("c", NodeFunc(noop))
				_ = b.AddConditionalEdge("c", route(), map[string]string{"x": END})
				_ = b.AddConditionalEdge("c", route(), map[string]string{"y": END})
				_ = b.SetEntry("c")
			},
			codes: []string{CodeDuplicateRouter},
		},
		{
			name: "interrupt before unknown node",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.SetEntry("a")
				_ = b.SetInterruptBefore("ghost")
			},
			codes: []string{CodeUnknownNode},
		},
		{
			name: "every problem is reported",
			build: func(b *Builder) {
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddNode("a", NodeFunc(noop))
				_ = b.AddEdge("a", "ghost")
				_ = b.AddConditionalNode("c", NodeFunc(noop))
			},
			codes: []string{CodeDuplicateNode, CodeUnknownNode, CodeMissingRouter, CodeMissingEntry},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(MustSchema(Field{Name: "x"}))
			tt.build(b)
			g, err := b.Build()
			if err == nil {
				t.Fatalf("expected build error, got graph %v", g.Nodes())
			}
			if !errors.Is(err, ErrGraphDefinition) {
				t.Errorf("error does not match ErrGraphDefinition: %v", err)
			}
			codes := definitionCodes(err)
			for _, want := range tt.codes {
				if !slices.Contains(codes, want) {
					t.Errorf("codes = %v, missing %s", codes, want)
				}
			}
		})
	}
}

func TestBuilder_MissingSchema(t *testing.T) {
	b := NewBuilder(nil)
	_ = b.AddNode("a", NodeFunc(noop))
	_ = b.SetEntry("a")
	_, err := b.Build()
	if codes := definitionCodes(err); !slices.Contains(codes, CodeMissingSchema) {
		t.Errorf("codes = %v, want %s", codes, CodeMissingSchema)
	}
}

func TestBuilder_EmptyTableWithDefault(t *testing.T) {
	b := NewBuilder(MustSchema(Field{Name: "x"}))
	_ = b.AddConditionalNode("c", NodeFunc(noop))
	_ = b.AddConditionalEdge("c", route(), nil, WithDefault(END))
	_ = b.SetEntry("c")
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestBuilder_ImmediateErrors(t *testing.T) {
	b := NewBuilder(MustSchema(Field{Name: "x"}))
	if err := b.AddNode("", NodeFunc(noop)); !errors.Is(err, ErrGraphDefinition) {
		t.Errorf("AddNode empty name: %v", err)
	}
	if err := b.AddEdge(END, "a"); !errors.Is(err, ErrGraphDefinition) {
		t.Errorf("AddEdge from END: %v", err)
	}
	if err := b.AddConditionalEdge("c", nil, map[string]string{"x": END}); !errors.Is(err, ErrGraphDefinition) {
		t.Errorf("AddConditionalEdge nil router: %v", err)
	}
	if err := b.SetEntry(END); !errors.Is(err, ErrGraphDefinition) {
		t.Errorf("SetEntry END: %v", err)
	}
	if err := b.RegisterNode("k", NodeKind(9), NodeFunc(noop)); !errors.Is(err, ErrGraphDefinition) {
		t.Errorf("RegisterNode unknown kind: %v", err)
	}
}

func TestBuilder_BuildIsRepeatableAndIsolated(t *testing.T) {
	labels := map[string]string{"loop": "c", "stop": END}
	b := NewBuilder(MustSchema(Field{Name: "x"}))
	_ = b.AddConditionalNode("c", NodeFunc(noop))
	_ = b.AddConditionalEdge("c", route("stop"), labels)
	_ = b.SetEntry("c")

	first, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	labels["extra"] = "c"
	_ = b.AddNode("late", NodeFunc(noop))

	if diff := cmp.Diff([]string{"loop", "stop"}, first.Labels("c")); diff != "" {
		t.Errorf("graph changed after builder mutation (-want +got):\n%s", diff)
	}
	if first.HasNode("late") {
		t.Error("graph picked up a node registered after Build")
	}

	second, err := b.Build()
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !second.HasNode("late") {
		t.Error("second Build should include the new node")
	}
}

func TestConditionalEdge_Resolve(t *testing.T) {
	withDefault := &ConditionalEdge{From: "r", Labels: map[string]string{"a": "A", "b": "B"}, Default: END, HasDefault: true}
	strict := &ConditionalEdge{From: "r", Labels: map[string]string{"a": "A", "b": "B"}}

	tests := []struct {
		name    string
		edge    *ConditionalEdge
		labels  []string
		want    []string
		wantErr bool
	}{
		{"mapped", strict, []string{"b", "a"}, []string{"B", "A"}, false},
		{"empty without default", strict, nil, nil, false},
		{"empty with default", withDefault, nil, []string{END}, false},
		{"unmapped falls back", withDefault, []string{"a", "zzz"}, []string{"A", END}, false},
		{"unmapped without default", strict, []string{"a", "zzz"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.edge.resolve(tt.labels, 4)
			if tt.wantErr {
				var rle *RouterLabelError
				if !errors.As(err, &rle) || rle.Label != "zzz" || rle.Node != "r" || rle.Wave != 4 {
					t.Fatalf("expected RouterLabelError for zzz, got %v", err)
				}
				if !errors.Is(err, ErrRouterLabel) {
					t.Error("RouterLabelError should match ErrRouterLabel")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGraph_Normalize(t *testing.T) {
	b := NewBuilder(MustSchema(Field{Name: "x"}))
	for _, name := range []string{"z", "a", "m"} {
		_ = b.AddNode(name, NodeFunc(noop))
	}
	_ = b.SetEntry("z")
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := g.normalize([]string{"m", END, "a", "m", "z", "a"})
	if diff := cmp.Diff([]string{"z", "a", "m"}, got); diff != "" {
		t.Errorf("normalize mismatch (-want +got):\n%s", diff)
	}
	if got := g.normalize([]string{END, END}); len(got) != 0 {
		t.Errorf("END-only frontier should normalize to empty, got %v", got)
	}
}
