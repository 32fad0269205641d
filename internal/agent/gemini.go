package agent

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/soochol/comfypilot/internal/config"
)

var _ Backend = (*GeminiBackend)(nil)

// GeminiBackend uses the google.golang.org/genai SDK for hosted,
// large-context generation. The client is created lazily on first use.
type GeminiBackend struct {
	apiKey  string
	models  []string
	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiBackend creates a Gemini backend with the given API key.
func NewGeminiBackend(apiKey string, models []string) *GeminiBackend {
	if len(models) == 0 {
		models = []string{"gemini-2.5-flash", "gemini-2.5-pro"}
	}
	return &GeminiBackend{apiKey: apiKey, models: models}
}

func (g *GeminiBackend) Name() string              { return "gemini" }
func (g *GeminiBackend) DisplayName() string       { return "Gemini (API)" }
func (g *GeminiBackend) SupportedModels() []string { return g.models }

func (g *GeminiBackend) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

// IsAvailable reports whether an API key is configured. No probe request is
// made; a bad key surfaces as a query error.
func (g *GeminiBackend) IsAvailable(ctx context.Context) bool {
	return g.apiKey != ""
}

// Query streams a generation. Transcript roles map onto genai contents;
// the system prompt rides in the generation config.
func (g *GeminiBackend) Query(ctx context.Context, messages []Message, cfg QueryConfig) (<-chan StreamChunk, error) {
	if err := g.ensureClient(ctx); err != nil {
		return nil, fmt.Errorf("gemini: client init failed: %w", err)
	}
	cfg = cfg.withDefaults()
	model := cfg.Model
	if model == "" {
		model = g.models[0]
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	temp := float32(cfg.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if cfg.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, genCfg) {
			if err != nil {
				if ctx.Err() == nil {
					out <- StreamChunk{Err: fmt.Errorf("gemini: %w", err)}
				}
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			select {
			case out <- StreamChunk{Content: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}

func init() {
	RegisterFactory("gemini", func(name string, cfg config.AgentConfig) Backend {
		return NewGeminiBackend(cfg.APIKey, cfg.Models)
	})
}
