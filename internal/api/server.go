// Package api exposes the /comfy-pilot HTTP surface: agent discovery, host
// status, workflow validation, and the streaming chat endpoint.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/comfypilot/internal/pilot"
	"github.com/soochol/comfypilot/internal/system"
	"github.com/soochol/comfypilot/internal/validation"
)

type Server struct {
	controller *pilot.Controller
	registry   *validation.NodeRegistry
	monitor    *system.Monitor
}

func NewServer(controller *pilot.Controller, registry *validation.NodeRegistry, monitor *system.Monitor) *Server {
	return &Server{
		controller: controller,
		registry:   registry,
		monitor:    monitor,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Route("/comfy-pilot", func(r chi.Router) {
		r.Get("/agents", s.getAgents)
		r.Get("/system", s.getSystemInfo)
		r.Get("/models", s.getModels)
		r.Get("/custom-nodes", s.getCustomNodes)
		r.Get("/knowledge-categories", s.getKnowledgeCategories)
		r.Get("/node-info", s.getNodeInfo)
		r.Post("/validate-workflow", s.validateWorkflow)
		r.Post("/apply-workflow", s.applyWorkflow)
		r.Post("/chat", s.chat)
	})
	return r
}

// jsonError writes a JSON error body with the given status.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": message})
}
