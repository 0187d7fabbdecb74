package graph

// END is the reserved target name that completes a run. It can appear as the
// destination of any edge or label, but never as a registered node.
const END = "__end__"

// Edge is a static connection from a plain node.
type Edge struct {
	From string
	To   string
}

// RouterFunc chooses the outgoing labels of a conditional node.
//
// Routers are evaluated on the state merged at the end of the wave in which
// their node ran. They must be deterministic and free of side effects: the
// engine may evaluate a router again for the same state on resume and relies
// on getting the same answer. An empty result follows the edge's default, if
// declared, and otherwise schedules nothing.
type RouterFunc func(state State) []string

// ConditionalEdge maps the labels returned by a router to target nodes.
type ConditionalEdge struct {
	From       string
	Router     RouterFunc
	Labels     map[string]string
	Default    string
	HasDefault bool
}

// EdgeOption configures a conditional edge.
type EdgeOption func(*ConditionalEdge)

// WithDefault sets the target used for labels missing from the table and
// for an empty label set.
func WithDefault(target string) EdgeOption {
	return func(ce *ConditionalEdge) {
		ce.Default = target
		ce.HasDefault = true
	}
}

// resolve maps router labels through the table. The returned targets keep
// the router's order and may contain duplicates; the frontier dedupes.
func (ce *ConditionalEdge) resolve(labels []string, wave int) ([]string, error) {
	if len(labels) == 0 {
		if ce.HasDefault {
			return []string{ce.Default}, nil
		}
		return nil, nil
	}
	targets := make([]string, 0, len(labels))
	for _, label := range labels {
		if to, ok := ce.Labels[label]; ok {
			targets = append(targets, to)
			continue
		}
		if !ce.HasDefault {
			return nil, &RouterLabelError{Node: ce.From, Label: label, Wave: wave}
		}
		targets = append(targets, ce.Default)
	}
	return targets, nil
}
