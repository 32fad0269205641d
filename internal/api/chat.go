package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/soochol/comfypilot/internal/agent"
	"github.com/soochol/comfypilot/internal/pilot"
)

// chatRequestBody is the wire form of a chat turn.
type chatRequestBody struct {
	Agent               string          `json:"agent"`
	Message             string          `json:"message"`
	History             []agent.Message `json:"history"`
	Model               string          `json:"model"`
	ContextMode         string          `json:"context_mode"`
	KnowledgeCategories []string        `json:"knowledge_categories"`
	CurrentWorkflow     map[string]any  `json:"current_workflow"`
	SessionID           string          `json:"session_id"`
}

// flushWriter adapts the HTTP response to pilot.StreamWriter, flushing
// after every chunk so the client sees tokens as they arrive.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushWriter) WriteChunk(text string) error {
	if _, err := fw.w.Write([]byte(text)); err != nil {
		return err
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}

// chat streams an agent reply with auto-correction.
// POST /comfy-pilot/chat
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Agent == "" {
		body.Agent = "ollama"
	}
	if body.ContextMode == "" {
		body.ContextMode = "standard"
	}
	if body.SessionID == "" {
		body.SessionID = pilot.NewSessionID()
	}

	// Resolve and probe before committing to a stream so failures can
	// still be proper JSON errors.
	backend, ok := s.controller.Agents.Get(body.Agent)
	if !ok {
		jsonError(w, http.StatusNotFound, fmt.Sprintf("Agent '%s' not found", body.Agent))
		return
	}
	if !backend.IsAvailable(r.Context()) {
		jsonError(w, http.StatusServiceUnavailable, fmt.Sprintf("Agent '%s' is not available", body.Agent))
		return
	}

	var categories map[string]bool
	if len(body.KnowledgeCategories) > 0 {
		categories = make(map[string]bool, len(body.KnowledgeCategories))
		for _, c := range body.KnowledgeCategories {
			categories[c] = true
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	req := pilot.ChatRequest{
		Agent:               body.Agent,
		Message:             body.Message,
		History:             body.History,
		Model:               body.Model,
		ContextMode:         body.ContextMode,
		KnowledgeCategories: categories,
		CurrentWorkflow:     body.CurrentWorkflow,
		SessionID:           body.SessionID,
	}
	s.controller.Chat(r.Context(), req, &flushWriter{w: w, flusher: flusher})
}
