package feedback

import (
	"context"
	"fmt"

	"github.com/dshills/wavegraph/graph"
)

// DefaultMaxIterations is the review-loop cap used when a Config leaves
// MaxIterations at zero.
const DefaultMaxIterations = 3

// DoneLabel is the router label emitted when the loop should stop.
const DoneLabel = "done"

// Config names the state fields a review loop uses.
type Config struct {
	// FeedbackField holds the raw review text (Replace policy).
	FeedbackField string

	// InstructionsField holds the classified []Instruction (Replace policy).
	InstructionsField string

	// IterationField counts classified rounds of feedback (Replace policy).
	IterationField string

	// Targets are the node names instructions may address. They double as
	// the router's labels.
	Targets []string

	// MaxIterations stops the loop once the counter exceeds it.
	MaxIterations int
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Labels returns the label table for the router: each target maps to the node
// of the same name and DoneLabel maps to graph.END.
func (c Config) Labels() map[string]string {
	table := map[string]string{DoneLabel: graph.END}
	for _, t := range c.Targets {
		table[t] = t
	}
	return table
}

// Check verifies that every target is a registered node of g, so the
// instruction target set is a subset of the graph's node names.
func (c Config) Check(g *graph.Graph) error {
	for _, t := range c.Targets {
		if !g.HasNode(t) {
			return &UnknownTargetError{Target: t, Allowed: g.Nodes()}
		}
	}
	return nil
}

// Router returns a routing function for the reviewing node.
//
// It yields DoneLabel when there are no instructions or the iteration counter
// has passed the cap, and otherwise one label per distinct target in the
// order the instructions name them. Instructions that fail to decode also
// yield DoneLabel: a router has no error channel and must stay total.
func Router(cfg Config) graph.RouterFunc {
	return func(state graph.State) []string {
		instructions, err := Decode(state[cfg.InstructionsField])
		if err != nil || len(instructions) == 0 {
			return []string{DoneLabel}
		}
		if state.Int(cfg.IterationField) > cfg.maxIterations() {
			return []string{DoneLabel}
		}
		return Targets(instructions)
	}
}

// ClassifyFunc turns free-form feedback into text containing a JSON list of
// instructions, typically by asking a language model.
type ClassifyFunc func(ctx context.Context, feedback string, targets []string) (string, error)

// ClassifierNode returns the reviewing node. Approval feedback clears the
// instructions without calling classify. Anything else is classified,
// parsed and validated against cfg.Targets, and the iteration counter is
// incremented. An unknown target fails the node, so the wave is discarded
// rather than silently dropping the instruction.
func ClassifierNode(cfg Config, classify ClassifyFunc) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.Update, error) {
		text := state.String(cfg.FeedbackField)
		if IsApproval(text) {
			return graph.Update{cfg.InstructionsField: []Instruction{}}, nil
		}

		raw, err := classify(ctx, text, cfg.Targets)
		if err != nil {
			return nil, &graph.NodeError{Message: "classify feedback", Code: "CLASSIFY_FAILED", Cause: err}
		}
		instructions, err := Parse(raw, cfg.Targets)
		if err != nil {
			return nil, &graph.NodeError{
				Message: fmt.Sprintf("parse classified feedback: %v", err),
				Code:    "INVALID_INSTRUCTIONS",
				Cause:   err,
			}
		}
		return graph.Update{
			cfg.InstructionsField: instructions,
			cfg.IterationField:    state.Int(cfg.IterationField) + 1,
		}, nil
	})
}
