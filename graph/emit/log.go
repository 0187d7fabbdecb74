package emit

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogEmitter implements Emitter by writing events through a slog.Logger.
//
// Supports two output modes when built with NewLogEmitter:
//   - Text mode (default): key=value pairs, readable in a terminal
//   - JSON mode: one JSON object per line
//
// Example text output:
//
//	time=... level=INFO msg=node_start thread_id=t-1 wave=1 node_id=architect
//
// Events whose Meta carries an "error" key are logged at ERROR level.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter writing to writer (os.Stdout if nil).
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return &LogEmitter{logger: slog.New(handler)}
}

// NewSlogEmitter creates a LogEmitter on top of an existing logger, so events
// share the application's handler, level and attributes.
func NewSlogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs the event.
func (l *LogEmitter) Emit(event Event) {
	attrs := []slog.Attr{
		slog.String("thread_id", event.ThreadID),
		slog.Int("wave", event.Wave),
	}
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	if len(event.Meta) > 0 {
		attrs = append(attrs, slog.Any("meta", event.Meta))
	}

	level := slog.LevelInfo
	if _, failed := event.Meta["error"]; failed {
		level = slog.LevelError
	}
	l.logger.LogAttrs(context.Background(), level, event.Msg, attrs...)
}
