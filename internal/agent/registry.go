package agent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/comfypilot/internal/config"
)

// Factory creates a Backend for a configured agent name.
type Factory func(name string, cfg config.AgentConfig) Backend

var factories = map[string]Factory{}

// RegisterFactory registers a factory for the given backend type string.
// Called from init() in each backend implementation file.
func RegisterFactory(typeName string, factory Factory) {
	factories[typeName] = factory
}

// Build looks up a registered factory for cfg.Type and calls it. An unknown
// type with a URL falls back to the Ollama-compatible backend. Returns
// (nil, false) when neither applies.
func Build(name string, cfg config.AgentConfig) (Backend, bool) {
	if factory, ok := factories[cfg.Type]; ok {
		return factory(name, cfg), true
	}
	if cfg.URL != "" {
		return NewOllamaBackend(name, cfg.URL, cfg.Models), true
	}
	return nil, false
}

// Status is the probe result for one registered backend.
type Status struct {
	Available   bool     `json:"available"`
	DisplayName string   `json:"display_name"`
	Models      []string `json:"models"`
}

// Registry holds the process-wide set of backends by name.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds or replaces a backend under its own name.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// All returns a snapshot of the registered backends.
func (r *Registry) All() map[string]Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Backend, len(r.backends))
	for name, b := range r.backends {
		out[name] = b
	}
	return out
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Available probes every registered backend concurrently and returns the
// per-name status.
func (r *Registry) Available(ctx context.Context) map[string]Status {
	backends := r.All()

	var mu sync.Mutex
	statuses := make(map[string]Status, len(backends))

	g, ctx := errgroup.WithContext(ctx)
	for name, b := range backends {
		g.Go(func() error {
			st := Status{
				Available:   b.IsAvailable(ctx),
				DisplayName: b.DisplayName(),
				Models:      b.SupportedModels(),
			}
			mu.Lock()
			statuses[name] = st
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return statuses
}
