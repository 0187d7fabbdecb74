package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// executeNode runs a node with an optional timeout and converts a panic into
// a *PanicError. A zero timeout leaves the caller's context untouched.
func executeNode(ctx context.Context, node Node, nodeID string, state State, timeout time.Duration) (update Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if timeout <= 0 {
		return node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	update, err = node.Run(timeoutCtx, state)

	// Only blame the node when its own deadline fired, not the caller's.
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}
	return update, err
}
