package emit

// Event represents an observability event emitted while a thread executes.
//
// Events give insight into:
//   - Wave boundaries and the frontier each wave ran
//   - Node start, completion and failure
//   - Interrupts, resumes and terminal outcomes
//   - Checkpoint saves
type Event struct {
	// ThreadID identifies the thread that emitted this event.
	ThreadID string

	// Wave is the wave number the event belongs to (1-indexed).
	// Zero for thread-level events emitted before the first wave.
	Wave int

	// NodeID identifies which node the event concerns.
	// Empty string for wave-level and thread-level events.
	NodeID string

	// Msg names the event, e.g. "node_start" or "interrupt".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "frontier": Node names scheduled for the next wave
	//   - "seq": Checkpoint revision
	Meta map[string]interface{}
}

// Event names emitted by the executor.
const (
	MsgRunStart        = "run_start"
	MsgResume          = "resume"
	MsgWaveStart       = "wave_start"
	MsgWaveEnd         = "wave_end"
	MsgNodeStart       = "node_start"
	MsgNodeEnd         = "node_end"
	MsgNodeError       = "node_error"
	MsgRouterError     = "router_error"
	MsgInterrupt       = "interrupt"
	MsgCheckpointSaved = "checkpoint_saved"
	MsgTerminal        = "terminal"
	MsgCeilingExceeded = "ceiling_exceeded"
)
