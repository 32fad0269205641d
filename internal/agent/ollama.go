package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/soochol/comfypilot/internal/config"
)

const defaultOllamaURL = "http://127.0.0.1:11434"

var _ Backend = (*OllamaBackend)(nil)

// OllamaBackend talks to a local Ollama server. Availability is a GET
// /api/tags probe; queries stream NDJSON from POST /api/chat.
type OllamaBackend struct {
	name    string
	baseURL string
	models  []string
	client  *http.Client
	probe   *http.Client
}

// NewOllamaBackend creates an Ollama backend. An empty baseURL uses the
// local default.
func NewOllamaBackend(name, baseURL string, models []string) *OllamaBackend {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaBackend{
		name:    name,
		baseURL: baseURL,
		models:  models,
		client:  &http.Client{},
		probe:   &http.Client{Timeout: 3 * time.Second},
	}
}

func (o *OllamaBackend) Name() string        { return o.name }
func (o *OllamaBackend) DisplayName() string { return "Ollama (Local)" }

// SupportedModels returns the configured model list, falling back to the
// models the server reports.
func (o *OllamaBackend) SupportedModels() []string {
	if len(o.models) > 0 {
		return o.models
	}
	return o.listModels(context.Background())
}

func (o *OllamaBackend) listModels(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	resp, err := o.probe.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names
}

// IsAvailable probes the server's tag listing.
func (o *OllamaBackend) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Query streams a chat completion. The system prompt from cfg is prepended
// as a system message; any system messages already in the transcript are
// kept in place.
func (o *OllamaBackend) Query(ctx context.Context, messages []Message, cfg QueryConfig) (<-chan StreamChunk, error) {
	cfg = cfg.withDefaults()
	model := cfg.Model
	if model == "" && len(o.models) > 0 {
		model = o.models[0]
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: no model configured")
	}

	wire := make([]map[string]any, 0, len(messages)+1)
	if cfg.SystemPrompt != "" {
		wire = append(wire, map[string]any{"role": RoleSystem, "content": cfg.SystemPrompt})
	}
	for _, m := range messages {
		wire = append(wire, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":    model,
		"messages": wire,
		"stream":   true,
		"options": map[string]any{
			"temperature": cfg.Temperature,
			"num_predict": cfg.MaxTokens,
		},
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: API error (status %d)", resp.StatusCode)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
				Done  bool   `json:"done"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				out <- StreamChunk{Err: fmt.Errorf("ollama: %s", chunk.Error)}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- StreamChunk{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- StreamChunk{Err: fmt.Errorf("ollama: read stream: %w", err)}
		}
	}()
	return out, nil
}

func init() {
	RegisterFactory("ollama", func(name string, cfg config.AgentConfig) Backend {
		return NewOllamaBackend(name, cfg.URL, cfg.Models)
	})
}
