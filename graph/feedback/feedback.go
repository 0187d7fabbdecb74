// Package feedback turns unstructured review input into structured
// instructions addressed to graph nodes, and routes a graph on them.
//
// A typical loop pauses before a reviewing node, receives free-form feedback
// from a person or a tool, classifies it into Instruction records and sends
// control back to the nodes those records target until the output is
// approved or an iteration cap is reached.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownTarget indicates an instruction addressed to a node outside the
// allowed set.
var ErrUnknownTarget = errors.New("unknown instruction target")

// ErrNoJSON indicates that no JSON value could be located in a text.
var ErrNoJSON = errors.New("no JSON value found")

// Instruction is one actionable item addressed to a node.
type Instruction struct {
	TargetNode  string `json:"target_node"`
	Instruction string `json:"instruction"`
}

// UnmarshalJSON accepts "target_node", "targetNode" and "agent" as the
// target key, so classifier output in any of these shapes decodes.
func (in *Instruction) UnmarshalJSON(data []byte) error {
	var raw struct {
		TargetNode  string `json:"target_node"`
		TargetCamel string `json:"targetNode"`
		Agent       string `json:"agent"`
		Instruction string `json:"instruction"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in.TargetNode = firstNonEmpty(raw.TargetNode, raw.TargetCamel, raw.Agent)
	in.Instruction = raw.Instruction
	return nil
}

// UnknownTargetError reports an instruction whose target is not allowed.
type UnknownTargetError struct {
	Target  string
	Allowed []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("instruction targets %q, allowed: %s", e.Target, strings.Join(e.Allowed, ", "))
}

func (e *UnknownTargetError) Unwrap() error { return ErrUnknownTarget }

// Validate checks every instruction against the allowed target names.
func Validate(instructions []Instruction, allowed []string) error {
	for _, in := range instructions {
		if !slices.Contains(allowed, in.TargetNode) {
			return &UnknownTargetError{Target: in.TargetNode, Allowed: slices.Clone(allowed)}
		}
	}
	return nil
}

// Parse extracts a JSON list of instructions from text, which may be wrapped
// in markdown fences or surrounded by prose, and validates the targets. A
// single JSON object is accepted as a one-element list.
func Parse(text string, allowed []string) ([]Instruction, error) {
	payload, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var instructions []Instruction
	if strings.HasPrefix(payload, "{") {
		var one Instruction
		if err := json.Unmarshal([]byte(payload), &one); err != nil {
			return nil, fmt.Errorf("decode instruction: %w", err)
		}
		instructions = []Instruction{one}
	} else if err := json.Unmarshal([]byte(payload), &instructions); err != nil {
		return nil, fmt.Errorf("decode instructions: %w", err)
	}

	if err := Validate(instructions, allowed); err != nil {
		return nil, err
	}
	if instructions == nil {
		instructions = []Instruction{}
	}
	return instructions, nil
}

// ExtractJSON locates the JSON value in collaborator output. It strips a
// ```json (or bare ```) fence, and if the remainder does not start with a
// JSON delimiter it falls back to the outermost [...] span, then {...}.
func ExtractJSON(text string) (string, error) {
	content := strings.TrimSpace(text)

	if _, after, ok := strings.Cut(content, "```json"); ok {
		content, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(content, "```"); ok {
		content, _, _ = strings.Cut(after, "```")
	}
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "[") || strings.HasPrefix(content, "{") {
		return content, nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(content, pair[0])
		end := strings.LastIndex(content, pair[1])
		if start != -1 && end > start {
			return content[start : end+1], nil
		}
	}
	return "", ErrNoJSON
}

// approvals are the exact (case-insensitive, trimmed) replies that mean the
// reviewed output is accepted.
var approvals = []string{"success", "done", "looks good"}

// IsApproval reports whether feedback accepts the reviewed output.
func IsApproval(feedback string) bool {
	return slices.Contains(approvals, strings.ToLower(strings.TrimSpace(feedback)))
}

// Decode reads instructions back from a state value. It accepts the value as
// written by a node ([]Instruction or []any of Instruction) and as reloaded
// from a JSON-backed store ([]any of map[string]any).
func Decode(value any) ([]Instruction, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []Instruction:
		return slices.Clone(v), nil
	case []any:
		out := make([]Instruction, 0, len(v))
		for i, item := range v {
			switch it := item.(type) {
			case Instruction:
				out = append(out, it)
			case *Instruction:
				out = append(out, *it)
			default:
				data, err := json.Marshal(it)
				if err != nil {
					return nil, fmt.Errorf("instruction %d: %w", i, err)
				}
				var in Instruction
				if err := json.Unmarshal(data, &in); err != nil {
					return nil, fmt.Errorf("instruction %d: %w", i, err)
				}
				out = append(out, in)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported instruction value of type %T", value)
	}
}

// Targets returns the distinct targets of instructions in first-seen order.
func Targets(instructions []Instruction) []string {
	var out []string
	for _, in := range instructions {
		if !slices.Contains(out, in.TargetNode) {
			out = append(out, in.TargetNode)
		}
	}
	return out
}

// For returns the instructions addressed to target.
func For(instructions []Instruction, target string) []Instruction {
	var out []Instruction
	for _, in := range instructions {
		if in.TargetNode == target {
			out = append(out, in)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
