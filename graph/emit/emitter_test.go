package emit

import (
	"sync"
	"testing"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestMultiEmitter(t *testing.T) {
	t.Run("fans out in order", func(t *testing.T) {
		a, b := &recordingEmitter{}, &recordingEmitter{}
		m := NewMultiEmitter(a, nil, b)

		m.Emit(Event{ThreadID: "t-1", Wave: 1, Msg: MsgWaveStart})
		m.Emit(Event{ThreadID: "t-1", Wave: 1, Msg: MsgWaveEnd})

		for name, r := range map[string]*recordingEmitter{"a": a, "b": b} {
			if len(r.events) != 2 {
				t.Fatalf("%s: expected 2 events, got %d", name, len(r.events))
			}
			if r.events[0].Msg != MsgWaveStart || r.events[1].Msg != MsgWaveEnd {
				t.Errorf("%s: events out of order: %+v", name, r.events)
			}
		}
	})

	t.Run("empty multi emitter is a no-op", func(t *testing.T) {
		m := NewMultiEmitter()
		m.Emit(Event{Msg: MsgTerminal})
	})
}

func TestNullEmitter(t *testing.T) {
	var e Emitter = NewNullEmitter()
	e.Emit(Event{})
	e.Emit(Event{ThreadID: "t", Meta: map[string]interface{}{"error": "boom"}})
}
