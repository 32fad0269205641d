package api

import (
	"encoding/json"
	"net/http"

	"github.com/soochol/comfypilot/internal/system"
	"github.com/soochol/comfypilot/internal/workflow"
)

// getAgents probes every registered backend.
// GET /comfy-pilot/agents
func (s *Server) getAgents(w http.ResponseWriter, r *http.Request) {
	statuses := s.controller.Agents.Available(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

// getSystemInfo returns the host's GPU status.
// GET /comfy-pilot/system
func (s *Server) getSystemInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.monitor.GPUInfo(r.Context()))
}

// getModels lists installed models by kind.
// GET /comfy-pilot/models
func (s *Server) getModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.monitor.AvailableModels(r.Context()))
}

// getCustomNodes summarizes custom-node capabilities from the node catalog.
// GET /comfy-pilot/custom-nodes
func (s *Server) getCustomNodes(w http.ResponseWriter, r *http.Request) {
	s.registry.Fetch(r.Context())
	report := system.ClassifyCapabilities(s.registry.AllClassTypes())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// getKnowledgeCategories lists knowledge categories with document titles.
// GET /comfy-pilot/knowledge-categories
func (s *Server) getKnowledgeCategories(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.controller.Knowledge.Categories())
}

// getNodeInfo reports the catalog load state and a bounded class-type list.
// GET /comfy-pilot/node-info
func (s *Server) getNodeInfo(w http.ResponseWriter, r *http.Request) {
	s.registry.Fetch(r.Context())
	classTypes := s.registry.AllClassTypes()
	shown := classTypes
	if len(shown) > 200 {
		shown = shown[:200]
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"loaded":      s.registry.IsLoaded(),
		"node_count":  len(classTypes),
		"class_types": shown,
	})
}

type issueJSON struct {
	Check      string `json:"check"`
	NodeID     string `json:"node_id"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// validateWorkflow runs the full validator without applying anything.
// POST /comfy-pilot/validate-workflow
func (s *Server) validateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Workflow workflow.Workflow `json:"workflow"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.registry.Fetch(r.Context())
	result := s.controller.Validator.Validate(body.Workflow)

	errors := []issueJSON{}
	for _, i := range result.Errors() {
		errors = append(errors, issueJSON{Check: i.Check, NodeID: i.NodeID, Message: i.Message, Suggestion: i.Suggestion})
	}
	warnings := []issueJSON{}
	for _, i := range result.Warnings() {
		warnings = append(warnings, issueJSON{Check: i.Check, NodeID: i.NodeID, Message: i.Message, Suggestion: i.Suggestion})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"valid":                      result.Valid(),
		"node_count":                 result.NodeCount,
		"validated_against_registry": result.ValidatedAgainstRegistry,
		"errors":                     errors,
		"warnings":                   warnings,
	})
}

// applyWorkflow gates a workflow before the client submits it to the host:
// the cheap structural check first, then the registry validator when the
// catalog is loaded. Failures return 400 with the messages.
// POST /comfy-pilot/apply-workflow
func (s *Server) applyWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Workflow workflow.Workflow `json:"workflow"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	manipulator := workflow.NewManipulator(body.Workflow)
	if ok, errs := manipulator.Validate(); !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"errors":  errs,
		})
		return
	}

	s.registry.Fetch(r.Context())
	if s.registry.IsLoaded() {
		result := s.controller.Validator.Validate(body.Workflow)
		if !result.Valid() {
			errors := []string{}
			for _, i := range result.Errors() {
				errors = append(errors, i.Message)
			}
			warnings := []string{}
			for _, i := range result.Warnings() {
				warnings = append(warnings, i.Message)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"success":  false,
				"errors":   errors,
				"warnings": warnings,
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"workflow":   body.Workflow,
		"node_count": len(body.Workflow),
	})
}
