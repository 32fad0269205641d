package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/soochol/comfypilot/internal/workflow"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Check identifiers, in the order the checks run.
const (
	CheckEmptyWorkflow        = "empty_workflow"
	CheckInvalidStructure     = "invalid_structure"
	CheckMissingClassType     = "missing_class_type"
	CheckMissingInputs        = "missing_inputs"
	CheckNodeNotFound         = "node_not_found"
	CheckRequiredInputMissing = "required_input_missing"
	CheckLinkInvalid          = "link_invalid"
	CheckSlotOutOfRange       = "output_slot_out_of_range"
	CheckTypeMismatch         = "type_mismatch"
	CheckValueOutOfRange      = "value_out_of_range"
	CheckInvalidComboValue    = "invalid_combo_value"
)

// ValidationIssue is one finding from a validation pass.
type ValidationIssue struct {
	Check      string `json:"check"`
	NodeID     string `json:"node_id"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Severity   string `json:"severity"`
}

// ValidationResult collects the issues of one pass in production order.
type ValidationResult struct {
	Issues                   []ValidationIssue
	NodeCount                int
	ValidatedAgainstRegistry bool
}

// Errors returns the issues with error severity.
func (r *ValidationResult) Errors() []ValidationIssue {
	return r.filter(SeverityError)
}

// Warnings returns the issues with warning severity.
func (r *ValidationResult) Warnings() []ValidationIssue {
	return r.filter(SeverityWarning)
}

func (r *ValidationResult) filter(severity string) []ValidationIssue {
	out := []ValidationIssue{}
	for _, i := range r.Issues {
		if i.Severity == severity {
			out = append(out, i)
		}
	}
	return out
}

// Valid reports whether the pass produced no errors. Warnings do not make
// a workflow invalid.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors()) == 0
}

// FormatForAgent renders the result as a correction prompt for the model.
// The wording is deterministic for a given result.
func (r *ValidationResult) FormatForAgent() string {
	errors := r.Errors()
	warnings := r.Warnings()
	if len(errors) == 0 && len(warnings) == 0 {
		return "WORKFLOW VALIDATION PASSED"
	}

	var b strings.Builder
	if len(errors) > 0 {
		fmt.Fprintf(&b, "WORKFLOW VALIDATION ERRORS (%d %s):\n", len(errors), pluralize("error", len(errors)))
		for _, issue := range errors {
			fmt.Fprintf(&b, "- [node %s] %s\n", issue.NodeID, issue.Message)
			if issue.Suggestion != "" {
				fmt.Fprintf(&b, "  Suggestion: %s\n", issue.Suggestion)
			}
		}
	}
	if len(warnings) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "WARNINGS (%d):\n", len(warnings))
		for _, issue := range warnings {
			fmt.Fprintf(&b, "- [node %s] %s\n", issue.NodeID, issue.Message)
		}
	}
	if len(errors) > 0 {
		b.WriteString("\nFix ALL errors and output the complete corrected workflow JSON.")
	}
	return b.String()
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// WorkflowValidator runs structural prechecks and seven registry checks
// over a candidate workflow. When the registry is not loaded only the
// structural checks run and ValidatedAgainstRegistry is false.
type WorkflowValidator struct {
	registry *NodeRegistry
}

// NewWorkflowValidator creates a validator bound to a node registry.
func NewWorkflowValidator(registry *NodeRegistry) *WorkflowValidator {
	return &WorkflowValidator{registry: registry}
}

// Validate runs every check over the workflow. It never fails: all findings
// become issues. Nodes are visited in ascending id order so repeated runs
// over the same input yield identical results.
func (v *WorkflowValidator) Validate(wf workflow.Workflow) *ValidationResult {
	result := &ValidationResult{
		NodeCount:                len(wf),
		ValidatedAgainstRegistry: v.registry != nil && v.registry.IsLoaded(),
	}

	if len(wf) == 0 {
		result.Issues = append(result.Issues, ValidationIssue{
			Check:    CheckEmptyWorkflow,
			Message:  "workflow is empty",
			Severity: SeverityError,
		})
		return result
	}

	for _, nodeID := range sortedNodeIDs(wf) {
		node, ok := wf.Node(nodeID)
		if !ok {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckInvalidStructure,
				NodeID:   nodeID,
				Message:  fmt.Sprintf("node %s is not an object", nodeID),
				Severity: SeverityError,
			})
			continue
		}

		classType := workflow.ClassType(node)
		if classType == "" {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckMissingClassType,
				NodeID:   nodeID,
				Message:  fmt.Sprintf("node %s is missing class_type", nodeID),
				Severity: SeverityError,
			})
			continue
		}

		inputs, ok := workflow.Inputs(node)
		if !ok {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckMissingInputs,
				NodeID:   nodeID,
				Message:  fmt.Sprintf("node %s (%s) is missing inputs", nodeID, classType),
				Severity: SeverityError,
			})
			continue
		}

		if result.ValidatedAgainstRegistry {
			v.checkNode(wf, nodeID, classType, inputs, result)
		}
	}
	return result
}

// checkNode runs the seven registry checks for one node.
func (v *WorkflowValidator) checkNode(wf workflow.Workflow, nodeID, classType string, inputs map[string]any, result *ValidationResult) {
	// Check 1: the class type must exist.
	def, known := v.registry.GetNode(classType)
	if !known {
		issue := ValidationIssue{
			Check:    CheckNodeNotFound,
			NodeID:   nodeID,
			Message:  fmt.Sprintf("unknown node type %q", classType),
			Severity: SeverityError,
		}
		if suggestions := v.registry.SuggestSimilar(classType, 3); len(suggestions) > 0 {
			issue.Suggestion = "Did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
		result.Issues = append(result.Issues, issue)
		return
	}

	// Check 2: every required input must be present.
	for _, name := range sortedInputNames(def.InputsRequired) {
		if _, present := inputs[name]; !present {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckRequiredInputMissing,
				NodeID:   nodeID,
				Message:  fmt.Sprintf("node %s (%s) is missing required input %q", nodeID, classType, name),
				Severity: SeverityError,
			})
		}
	}

	// Checks 3-7 examine each provided input value.
	for _, name := range sortedKeys(inputs) {
		value := inputs[name]
		if sourceID, slot, isLink := workflow.AsLink(value); isLink {
			v.checkLink(wf, nodeID, classType, name, sourceID, slot, result)
		} else {
			v.checkLiteral(nodeID, classType, def, name, value, result)
		}
	}
}

// checkLink covers link validity (3), slot range (4), and type
// compatibility (5).
func (v *WorkflowValidator) checkLink(wf workflow.Workflow, nodeID, classType, inputName, sourceID string, slot int, result *ValidationResult) {
	sourceNode, exists := wf.Node(sourceID)
	if !exists {
		if _, present := wf[sourceID]; !present {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckLinkInvalid,
				NodeID:   nodeID,
				Message:  fmt.Sprintf("input %q links to node %s, which does not exist in the workflow", inputName, sourceID),
				Severity: SeverityError,
			})
		}
		return
	}

	sourceClass := workflow.ClassType(sourceNode)
	sourceDef, known := v.registry.GetNode(sourceClass)
	if !known {
		// The source node gets its own node_not_found error.
		return
	}

	if slot < 0 || slot >= len(sourceDef.OutputTypes) {
		result.Issues = append(result.Issues, ValidationIssue{
			Check:    CheckSlotOutOfRange,
			NodeID:   nodeID,
			Message: fmt.Sprintf("input %q references output slot %d of node %s (%s), which has only %d outputs",
				inputName, slot, sourceID, sourceClass, len(sourceDef.OutputTypes)),
			Severity: SeverityError,
		})
		return
	}

	inputType, _, ok := v.registry.GetInputType(classType, inputName)
	if !ok {
		return
	}
	outputType := sourceDef.OutputTypes[slot]
	if typesCompatible(outputType, inputType) {
		return
	}
	result.Issues = append(result.Issues, ValidationIssue{
		Check:    CheckTypeMismatch,
		NodeID:   nodeID,
		Message: fmt.Sprintf("input %q expects %s but node %s slot %d outputs %s",
			inputName, inputType, sourceID, slot, outputType),
		Severity: SeverityWarning,
	})
}

// typesCompatible accepts exact matches plus anything involving loose or
// structural typing. The registry's view is imperfect, so this stays
// permissive.
func typesCompatible(outputType, inputType string) bool {
	if outputType == inputType {
		return true
	}
	loose := map[string]bool{"UNKNOWN": true, "COMBO": true, "*": true, "": true}
	return loose[outputType] || loose[inputType]
}

// checkLiteral covers value ranges (6) and combo membership (7) for
// non-link values.
func (v *WorkflowValidator) checkLiteral(nodeID, classType string, def NodeDefinition, inputName string, value any, result *ValidationResult) {
	in, ok := def.InputsRequired[inputName]
	if !ok {
		in, ok = def.InputsOptional[inputName]
	}
	if !ok {
		return
	}

	if num, isNum := asFloat(value); isNum {
		if in.MinVal != nil && num < *in.MinVal {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckValueOutOfRange,
				NodeID:   nodeID,
				Message: fmt.Sprintf("input %q value %v is below the minimum %v",
					inputName, value, *in.MinVal),
				Severity: SeverityError,
			})
		}
		if in.MaxVal != nil && num > *in.MaxVal {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckValueOutOfRange,
				NodeID:   nodeID,
				Message: fmt.Sprintf("input %q value %v is above the maximum %v",
					inputName, value, *in.MaxVal),
				Severity: SeverityError,
			})
		}
	}

	if in.Type == "COMBO" && len(in.Options) > 0 {
		if !comboContains(in.Options, value) {
			result.Issues = append(result.Issues, ValidationIssue{
				Check:    CheckInvalidComboValue,
				NodeID:   nodeID,
				Message: fmt.Sprintf("input %q value %v is not among the known options (%s)",
					inputName, value, previewOptions(in.Options)),
				Severity: SeverityWarning,
			})
		}
	}
}

func comboContains(options []any, value any) bool {
	for _, opt := range options {
		if opt == value {
			return true
		}
		// Numeric options decode differently between catalog and workflow.
		of, okO := asFloat(opt)
		vf, okV := asFloat(value)
		if okO && okV && of == vf {
			return true
		}
	}
	return false
}

func previewOptions(options []any) string {
	const cap = 5
	parts := make([]string, 0, cap+1)
	for i, opt := range options {
		if i == cap {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%v", opt))
	}
	return strings.Join(parts, ", ")
}

func sortedNodeIDs(wf workflow.Workflow) []string {
	ids := make([]string, 0, len(wf))
	for id := range wf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, errI := strconv.Atoi(ids[i])
		nj, errJ := strconv.Atoi(ids[j])
		if errI == nil && errJ == nil {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func sortedInputNames(inputs map[string]InputDefinition) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
