package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Manipulator offers structural editing primitives over a workflow: adding
// and removing nodes, wiring links, and JSON round-tripping. It owns a deep
// copy of the workflow it was constructed from.
type Manipulator struct {
	wf     Workflow
	nextID int
}

// NewManipulator creates a Manipulator over a copy of wf. Pass nil to start
// from an empty workflow.
func NewManipulator(wf Workflow) *Manipulator {
	m := &Manipulator{wf: clone(wf)}
	m.nextID = nextNodeID(m.wf)
	return m
}

// nextNodeID returns max(numeric node ids, 0) + 1.
func nextNodeID(wf Workflow) int {
	max := 0
	for id := range wf {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// Workflow returns the underlying workflow mapping.
func (m *Manipulator) Workflow() Workflow {
	return m.wf
}

// AddNode appends a node with a fresh id and returns that id. The optional
// title is recorded in _meta; it defaults to the class type.
func (m *Manipulator) AddNode(classType string, inputs map[string]any, title ...string) string {
	if inputs == nil {
		inputs = map[string]any{}
	}
	metaTitle := classType
	if len(title) > 0 && title[0] != "" {
		metaTitle = title[0]
	}
	id := strconv.Itoa(m.nextID)
	m.nextID++
	m.wf[id] = map[string]any{
		"class_type": classType,
		"inputs":     inputs,
		"_meta":      map[string]any{"title": metaTitle},
	}
	return id
}

// RemoveNode deletes a node and scrubs every surviving input link that
// referenced it as a source. Returns false if the node does not exist.
func (m *Manipulator) RemoveNode(id string) bool {
	if _, ok := m.wf[id]; !ok {
		return false
	}
	delete(m.wf, id)
	for _, v := range m.wf {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		inputs, ok := Inputs(node)
		if !ok {
			continue
		}
		for name, value := range inputs {
			if src, _, isLink := AsLink(value); isLink && src == id {
				delete(inputs, name)
			}
		}
	}
	return true
}

// ConnectNodes wires the destination input to [sourceID, slot]. Returns
// false if the destination node does not exist.
func (m *Manipulator) ConnectNodes(sourceID string, slot int, destID, inputName string) bool {
	node, ok := m.wf.Node(destID)
	if !ok {
		return false
	}
	inputs, ok := Inputs(node)
	if !ok {
		inputs = map[string]any{}
		node["inputs"] = inputs
	}
	inputs[inputName] = []any{sourceID, slot}
	return true
}

// ModifyInput overwrites one input value on a node. Returns false if the
// node does not exist.
func (m *Manipulator) ModifyInput(id, inputName string, value any) bool {
	node, ok := m.wf.Node(id)
	if !ok {
		return false
	}
	inputs, ok := Inputs(node)
	if !ok {
		inputs = map[string]any{}
		node["inputs"] = inputs
	}
	inputs[inputName] = value
	return true
}

// GetNodesByType returns the ids of all nodes with the given class type,
// in ascending id order.
func (m *Manipulator) GetNodesByType(classType string) []string {
	ids := []string{}
	for id, v := range m.wf {
		if node, ok := v.(map[string]any); ok && ClassType(node) == classType {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return lessNodeID(ids[i], ids[j]) })
	return ids
}

// GetNode returns the node object for the given id.
func (m *Manipulator) GetNode(id string) (map[string]any, bool) {
	return m.wf.Node(id)
}

// ToJSON serializes the workflow in its canonical wire format.
func (m *Manipulator) ToJSON() (string, error) {
	data, err := json.Marshal(m.wf)
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}
	return string(data), nil
}

// FromJSON replaces the workflow with the parsed document and recomputes
// the next node id.
func (m *Manipulator) FromJSON(data string) error {
	var wf Workflow
	if err := json.Unmarshal([]byte(data), &wf); err != nil {
		return fmt.Errorf("parse workflow: %w", err)
	}
	m.wf = wf
	m.nextID = nextNodeID(wf)
	return nil
}

// Validate performs the cheap structural gate: every node carries
// class_type and inputs, and every link resolves to a workflow key.
// Registry-aware validation lives in the validation package.
func (m *Manipulator) Validate() (bool, []string) {
	var errs []string
	for _, id := range sortedNodeIDs(m.wf) {
		node, ok := m.wf.Node(id)
		if !ok {
			errs = append(errs, fmt.Sprintf("node %s is not an object", id))
			continue
		}
		if ClassType(node) == "" {
			errs = append(errs, fmt.Sprintf("node %s is missing class_type", id))
		}
		inputs, ok := Inputs(node)
		if !ok {
			errs = append(errs, fmt.Sprintf("node %s is missing inputs", id))
			continue
		}
		for _, name := range sortedKeys(inputs) {
			if src, _, isLink := AsLink(inputs[name]); isLink {
				if _, exists := m.wf[src]; !exists {
					errs = append(errs, fmt.Sprintf("node %s input %q links to missing node %s", id, name, src))
				}
			}
		}
	}
	return len(errs) == 0, errs
}

// lessNodeID orders node ids numerically when both parse as integers,
// falling back to lexicographic order.
func lessNodeID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

func sortedNodeIDs(wf Workflow) []string {
	ids := make([]string, 0, len(wf))
	for id := range wf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessNodeID(ids[i], ids[j]) })
	return ids
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
