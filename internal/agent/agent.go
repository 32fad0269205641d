// Package agent defines the backend abstraction for chat model providers
// and the process-wide registry they register into. Each backend streams
// text chunks over a channel; chunk order is the contract.
package agent

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryConfig carries per-query options. Zero values fall back to defaults.
type QueryConfig struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Extra        map[string]any
}

// DefaultQueryConfig returns the baseline query options.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// withDefaults fills unset numeric fields from the baseline.
func (c QueryConfig) withDefaults() QueryConfig {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	return c
}

// StreamChunk is one unit of streamed backend output. A non-nil Err
// terminates the stream; no chunks follow it.
type StreamChunk struct {
	Content string
	Err     error
}

// Backend is the uniform contract over heterogeneous model providers.
// Query returns a finite, non-restartable channel of chunks; the channel is
// closed when the stream ends. IsAvailable must be cheap and side-effect
// free aside from probe I/O.
type Backend interface {
	Name() string
	DisplayName() string
	SupportedModels() []string
	IsAvailable(ctx context.Context) bool
	Query(ctx context.Context, messages []Message, cfg QueryConfig) (<-chan StreamChunk, error)
}
