package feedback

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stacks = []string{"frontend", "backend", "infra"}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare list", `[{"target_node":"backend"}]`, `[{"target_node":"backend"}]`},
		{"json fence", "Here you go:\n```json\n[1, 2]\n```\nThanks", "[1, 2]"},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around list", `The errors are [{"agent":"infra"}] as requested.`, `[{"agent":"infra"}]`},
		{"prose around object", `Result: {"target_node":"frontend"} done`, `{"target_node":"frontend"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ExtractJSON("nothing structured here")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestParse(t *testing.T) {
	t.Run("list with key variants", func(t *testing.T) {
		text := "```json\n[" +
			`{"target_node": "backend", "instruction": "validate input"},` +
			`{"targetNode": "frontend", "instruction": "fix layout"},` +
			`{"agent": "infra", "instruction": "pin postgres"}` +
			"]\n```"
		got, err := Parse(text, stacks)
		require.NoError(t, err)
		assert.Equal(t, []Instruction{
			{TargetNode: "backend", Instruction: "validate input"},
			{TargetNode: "frontend", Instruction: "fix layout"},
			{TargetNode: "infra", Instruction: "pin postgres"},
		}, got)
	})

	t.Run("single object", func(t *testing.T) {
		got, err := Parse(`{"target_node": "infra", "instruction": "add healthcheck"}`, stacks)
		require.NoError(t, err)
		assert.Equal(t, []Instruction{{TargetNode: "infra", Instruction: "add healthcheck"}}, got)
	})

	t.Run("empty list", func(t *testing.T) {
		got, err := Parse("[]", stacks)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("unknown target rejected", func(t *testing.T) {
		_, err := Parse(`[{"target_node": "qa", "instruction": "add tests"}]`, stacks)
		require.ErrorIs(t, err, ErrUnknownTarget)
		var ute *UnknownTargetError
		require.True(t, errors.As(err, &ute))
		assert.Equal(t, "qa", ute.Target)
		assert.Equal(t, stacks, ute.Allowed)
	})

	t.Run("missing target rejected", func(t *testing.T) {
		_, err := Parse(`[{"instruction": "something"}]`, stacks)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Parse(`[{"target_node": }]`, stacks)
		assert.Error(t, err)
	})
}

func TestInstruction_MarshalUsesCanonicalKey(t *testing.T) {
	data, err := json.Marshal(Instruction{TargetNode: "backend", Instruction: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"target_node":"backend","instruction":"x"}`, string(data))
}

func TestIsApproval(t *testing.T) {
	for _, text := range []string{"success", "  Done ", "LOOKS GOOD"} {
		assert.True(t, IsApproval(text), text)
	}
	for _, text := range []string{"", "looks good but fix the footer", "not done", "ok"} {
		assert.False(t, IsApproval(text), text)
	}
}

func TestDecode(t *testing.T) {
	want := []Instruction{{TargetNode: "backend", Instruction: "a"}, {TargetNode: "infra", Instruction: "b"}}

	fromJSON := []any{
		map[string]any{"target_node": "backend", "instruction": "a"},
		map[string]any{"agent": "infra", "instruction": "b"},
	}
	tests := []struct {
		name  string
		value any
	}{
		{"typed slice", want},
		{"any of values", []any{want[0], want[1]}},
		{"any of pointers", []any{&want[0], &want[1]}},
		{"reloaded from JSON", fromJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.value)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Decode("backend: fix it")
	assert.Error(t, err)
}

func TestTargetsAndFor(t *testing.T) {
	instructions := []Instruction{
		{TargetNode: "backend", Instruction: "1"},
		{TargetNode: "frontend", Instruction: "2"},
		{TargetNode: "backend", Instruction: "3"},
	}
	assert.Equal(t, []string{"backend", "frontend"}, Targets(instructions))
	assert.Equal(t, []Instruction{instructions[0], instructions[2]}, For(instructions, "backend"))
	assert.Empty(t, For(instructions, "infra"))
	assert.Empty(t, Targets(nil))
}
