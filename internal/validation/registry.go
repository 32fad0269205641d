// Package validation fetches the ComfyUI node catalog and checks candidate
// workflows against it. The registry degrades gracefully: fetch failures
// keep the last good snapshot, and malformed catalog entries parse to
// UNKNOWN-typed inputs instead of failing the load.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultCacheTTL     = 5 * time.Minute

	// suggestDistance is the maximum edit distance for class-name suggestions.
	suggestDistance = 3
)

// InputDefinition describes one declared input of a node class.
type InputDefinition struct {
	Name     string
	Type     string
	Required bool
	Default  any
	MinVal   *float64
	MaxVal   *float64
	Options  []any
}

// NodeDefinition is the parsed signature of one node class from object_info.
type NodeDefinition struct {
	ClassType      string
	Category       string
	DisplayName    string
	InputsRequired map[string]InputDefinition
	InputsOptional map[string]InputDefinition
	OutputTypes    []string
	OutputNames    []string
}

// NodeRegistry caches the node catalog fetched from the ComfyUI host at
// GET /object_info. The snapshot is swapped atomically under the mutex so
// concurrent readers always observe a consistent catalog.
type NodeRegistry struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu        sync.RWMutex
	nodes     map[string]NodeDefinition
	lastFetch time.Time
	loaded    bool
}

// NewNodeRegistry creates a registry for the given ComfyUI base URL.
func NewNodeRegistry(baseURL string) *NodeRegistry {
	return &NodeRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultFetchTimeout},
		ttl:     defaultCacheTTL,
	}
}

// NewStaticRegistry creates a pre-populated registry that never fetches.
// Used by tests and offline tooling.
func NewStaticRegistry(nodes map[string]NodeDefinition) *NodeRegistry {
	return &NodeRegistry{
		nodes:     nodes,
		loaded:    len(nodes) > 0,
		lastFetch: time.Now().Add(100 * 365 * 24 * time.Hour),
		ttl:       defaultCacheTTL,
	}
}

// Fetch refreshes the catalog if the cache has expired. It reports whether
// a usable catalog is loaded afterwards. All transport and parse failures
// are swallowed: the previous snapshot stays intact and Fetch returns false.
func (r *NodeRegistry) Fetch(ctx context.Context) bool {
	r.mu.RLock()
	fresh := r.loaded && time.Since(r.lastFetch) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return true
	}
	if r.baseURL == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/object_info", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var raw map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false
	}
	if len(raw) == 0 {
		return false
	}

	nodes := make(map[string]NodeDefinition, len(raw))
	for classType, info := range raw {
		nodes[classType] = parseNodeInfo(classType, info)
	}

	r.mu.Lock()
	r.nodes = nodes
	r.lastFetch = time.Now()
	r.loaded = true
	r.mu.Unlock()
	return true
}

// IsLoaded reports whether a catalog snapshot is available.
func (r *NodeRegistry) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// NodeExists reports whether the class type is in the catalog.
func (r *NodeRegistry) NodeExists(classType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[classType]
	return ok
}

// GetNode returns the definition for a class type.
func (r *NodeRegistry) GetNode(classType string) (NodeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.nodes[classType]
	return def, ok
}

// GetOutputType returns the semantic type of one output slot. Out-of-range
// slots and unknown classes return false.
func (r *NodeRegistry) GetOutputType(classType string, slot int) (string, bool) {
	def, ok := r.GetNode(classType)
	if !ok || slot < 0 || slot >= len(def.OutputTypes) {
		return "", false
	}
	return def.OutputTypes[slot], true
}

// GetInputType returns the semantic type of a named input and whether it is
// required, searching required inputs before optional ones.
func (r *NodeRegistry) GetInputType(classType, inputName string) (string, bool, bool) {
	def, ok := r.GetNode(classType)
	if !ok {
		return "", false, false
	}
	if in, ok := def.InputsRequired[inputName]; ok {
		return in.Type, true, true
	}
	if in, ok := def.InputsOptional[inputName]; ok {
		return in.Type, false, true
	}
	return "", false, false
}

// AllClassTypes returns every known class type in sorted order.
func (r *NodeRegistry) AllClassTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.nodes))
	for ct := range r.nodes {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// SuggestSimilar returns up to topK class names within edit distance
// suggestDistance of name, closest first, ties broken lexicographically.
func (r *NodeRegistry) SuggestSimilar(name string, topK int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded || topK <= 0 {
		return nil
	}

	type candidate struct {
		name string
		dist int
	}
	var candidates []candidate
	for ct := range r.nodes {
		if d := editDistance(name, ct); d <= suggestDistance {
			candidates = append(candidates, candidate{name: ct, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// parseNodeInfo converts one object_info entry into a NodeDefinition.
// Missing fields default to empty; no entry is rejected.
func parseNodeInfo(classType string, info map[string]any) NodeDefinition {
	def := NodeDefinition{
		ClassType:      classType,
		InputsRequired: map[string]InputDefinition{},
		InputsOptional: map[string]InputDefinition{},
	}
	def.Category, _ = info["category"].(string)
	def.DisplayName, _ = info["display_name"].(string)
	def.OutputTypes = stringSlice(info["output"])
	def.OutputNames = stringSlice(info["output_name"])

	input, _ := info["input"].(map[string]any)
	if required, ok := input["required"].(map[string]any); ok {
		for name, spec := range required {
			def.InputsRequired[name] = parseInputSpec(name, spec, true)
		}
	}
	if optional, ok := input["optional"].(map[string]any); ok {
		for name, spec := range optional {
			def.InputsOptional[name] = parseInputSpec(name, spec, false)
		}
	}
	return def
}

// parseInputSpec parses a single input spec: a one- or two-element array
// whose first element is a type name or a COMBO option list, and whose
// optional second element holds default/min/max constraints. Anything
// malformed becomes an UNKNOWN-typed input rather than a load failure.
func parseInputSpec(name string, spec any, required bool) InputDefinition {
	in := InputDefinition{Name: name, Type: "UNKNOWN", Required: required}

	arr, ok := spec.([]any)
	if !ok || len(arr) == 0 {
		return in
	}

	switch first := arr[0].(type) {
	case string:
		in.Type = first
	case []any:
		in.Type = "COMBO"
		in.Options = first
	}

	if len(arr) > 1 {
		if constraints, ok := arr[1].(map[string]any); ok {
			in.Default = constraints["default"]
			if min, ok := asFloat(constraints["min"]); ok {
				in.MinVal = &min
			}
			if max, ok := asFloat(constraints["max"]); ok {
				in.MaxVal = &max
			}
		}
	}
	return in
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		out = append(out, fmt.Sprintf("%v", e))
	}
	return out
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
