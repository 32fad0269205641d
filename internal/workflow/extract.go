package workflow

import (
	"encoding/json"
	"regexp"
)

// Fenced code blocks in model output. The json-tagged form is preferred;
// untagged blocks are a fallback for models that drop the language tag.
var (
	jsonFencePattern  = regexp.MustCompile("(?s)```json\\s*\n(.*?)```")
	plainFencePattern = regexp.MustCompile("(?s)```\\s*\n(.*?)```")
)

// ExtractFromResponse scans free-form model output for an embedded workflow.
// Priority: json-tagged fenced blocks, then untagged fenced blocks, then the
// whole response as raw JSON. A candidate qualifies only when it parses to a
// non-empty object whose every value is an object with a class_type string.
// Parse failures are silent; extraction never fails loudly.
func ExtractFromResponse(response string) (Workflow, bool) {
	for _, match := range jsonFencePattern.FindAllStringSubmatch(response, -1) {
		if wf, ok := parseCandidate(match[1]); ok {
			return wf, true
		}
	}
	for _, match := range plainFencePattern.FindAllStringSubmatch(response, -1) {
		if wf, ok := parseCandidate(match[1]); ok {
			return wf, true
		}
	}
	return parseCandidate(response)
}

func parseCandidate(text string) (Workflow, bool) {
	var wf Workflow
	if err := json.Unmarshal([]byte(text), &wf); err != nil {
		return nil, false
	}
	if len(wf) == 0 {
		return nil, false
	}
	for _, v := range wf {
		node, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if ClassType(node) == "" {
			return nil, false
		}
	}
	return wf, true
}
