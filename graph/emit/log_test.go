package emit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{ThreadID: "t-1", Wave: 2, NodeID: "sandbox", Msg: MsgNodeStart})

	out := buf.String()
	for _, want := range []string{"level=INFO", "msg=node_start", "thread_id=t-1", "wave=2", "node_id=sandbox"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{ThreadID: "t-1", Wave: 1, Msg: MsgWaveEnd, Meta: map[string]interface{}{"duration_ms": 12}})
	e.Emit(Event{ThreadID: "t-1", Wave: 2, NodeID: "backend", Msg: MsgNodeError, Meta: map[string]interface{}{"error": "boom"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first["msg"] != MsgWaveEnd || first["thread_id"] != "t-1" {
		t.Errorf("unexpected record: %v", first)
	}
	if _, ok := first["node_id"]; ok {
		t.Error("node_id should be omitted for wave-level events")
	}
	meta, ok := first["meta"].(map[string]any)
	if !ok || meta["duration_ms"] != float64(12) {
		t.Errorf("meta = %v", first["meta"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if second["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", second["level"])
	}
}

func TestSlogEmitter_RespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	e := NewSlogEmitter(logger)

	e.Emit(Event{ThreadID: "t", Msg: MsgNodeEnd})
	if buf.Len() != 0 {
		t.Errorf("info event should be filtered, got %q", buf.String())
	}

	e.Emit(Event{ThreadID: "t", Msg: MsgNodeError, Meta: map[string]interface{}{"error": "x"}})
	if !strings.Contains(buf.String(), "msg=node_error") {
		t.Errorf("error event missing: %q", buf.String())
	}
}
