// Package workflow provides structural editing and extraction of ComfyUI
// API-format workflows. A workflow is a JSON object whose keys are numeric
// node ids and whose values are nodes carrying class_type, inputs, and
// optional _meta. The wire format round-trips exactly, so the workflow is
// held as generic JSON rather than rigid structs.
package workflow

import "encoding/json"

// Workflow maps node id strings ("1", "2", ...) to node objects.
type Workflow map[string]any

// Node returns the node object for the given id, or false if the id is
// absent or the entry is not an object.
func (w Workflow) Node(id string) (map[string]any, bool) {
	node, ok := w[id].(map[string]any)
	return node, ok
}

// Inputs returns the inputs mapping of a node object, or false if absent.
func Inputs(node map[string]any) (map[string]any, bool) {
	inputs, ok := node["inputs"].(map[string]any)
	return inputs, ok
}

// ClassType returns the class_type of a node object, or "" if absent.
func ClassType(node map[string]any) string {
	ct, _ := node["class_type"].(string)
	return ct
}

// AsLink reports whether an input value is a node link — a two-element
// array of [source_node_id, output_slot]. JSON decoding yields the slot as
// float64; programmatic construction may use int.
func AsLink(v any) (sourceID string, slot int, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) != 2 {
		return "", 0, false
	}
	id, isStr := arr[0].(string)
	if !isStr {
		return "", 0, false
	}
	switch n := arr[1].(type) {
	case float64:
		return id, int(n), true
	case int:
		return id, n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return "", 0, false
		}
		return id, int(f), true
	}
	return "", 0, false
}

// clone deep-copies a workflow through a JSON round trip so edits never
// alias the caller's maps.
func clone(w Workflow) Workflow {
	if len(w) == 0 {
		return Workflow{}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return Workflow{}
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return Workflow{}
	}
	return out
}
