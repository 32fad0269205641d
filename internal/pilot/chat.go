package pilot

import (
	"context"
	"fmt"

	"github.com/soochol/comfypilot/internal/agent"
	"github.com/soochol/comfypilot/internal/validation"
	"github.com/soochol/comfypilot/internal/workflow"
)

// StreamWriter receives chat output chunks in order. The HTTP layer adapts
// a flushing response writer to this; tests use a buffer.
type StreamWriter interface {
	WriteChunk(text string) error
}

// ChatRequest carries one chat turn's parameters.
type ChatRequest struct {
	Agent               string
	Message             string
	History             []agent.Message
	Model               string
	ContextMode         string
	KnowledgeCategories map[string]bool
	CurrentWorkflow     map[string]any
	SessionID           string
}

// Chat resolves the backend, assembles the system prompt, streams the reply,
// and drives the correction loop when the reply contains an invalid
// workflow. Errors after the stream opens are written into the stream; the
// returned error covers only pre-stream failures already handled by the
// HTTP layer.
func (c *Controller) Chat(ctx context.Context, req ChatRequest, w StreamWriter) error {
	backend, ok := c.Agents.Get(req.Agent)
	if !ok {
		return fmt.Errorf("agent %q not found", req.Agent)
	}

	knowledgeText := c.Knowledge.BuildKnowledgeText(
		req.Message, req.Agent, req.Model, req.ContextMode, req.KnowledgeCategories)
	systemContext := c.BuildSystemContext(ctx)
	workflowContext := ""
	if len(req.CurrentWorkflow) > 0 {
		workflowContext = BuildWorkflowContext(req.CurrentWorkflow, req.ContextMode != "minimal")
	}

	cfg := agent.DefaultQueryConfig()
	cfg.Model = req.Model
	cfg.SystemPrompt = ComposeSystemPrompt(agent.BaseSystemPrompt, knowledgeText, systemContext, workflowContext)

	messages := append([]agent.Message{}, req.History...)
	messages = append(messages, agent.Message{Role: agent.RoleUser, Content: req.Message})

	// Best effort: a loaded catalog enables the correction loop.
	c.Registry.Fetch(ctx)

	fullResponse, err := c.streamQuery(ctx, backend, messages, cfg, w)
	if err != nil {
		w.WriteChunk(fmt.Sprintf("\n\nError: %s", err))
		return nil
	}

	if c.Registry.IsLoaded() {
		if wf, found := workflow.ExtractFromResponse(fullResponse); found {
			result := c.Validator.Validate(wf)
			if !result.Valid() {
				fullResponse = c.runCorrectionLoop(ctx, backend, messages, cfg, fullResponse, result, w)
			}
		}
	}

	c.AppendHistory(req.SessionID,
		agent.Message{Role: agent.RoleUser, Content: req.Message},
		agent.Message{Role: agent.RoleAssistant, Content: fullResponse})
	return nil
}

// streamQuery invokes the backend and forwards chunks verbatim, returning
// the accumulated response.
func (c *Controller) streamQuery(ctx context.Context, backend agent.Backend, messages []agent.Message, cfg agent.QueryConfig, w StreamWriter) (string, error) {
	stream, err := backend.Query(ctx, messages, cfg)
	if err != nil {
		return "", err
	}
	var full string
	for chunk := range stream {
		if chunk.Err != nil {
			return full, chunk.Err
		}
		full += chunk.Content
		if err := w.WriteChunk(chunk.Content); err != nil {
			// Client gone; stop reading so the backend stream can close.
			return full, err
		}
	}
	return full, nil
}

// runCorrectionLoop re-prompts the backend with formatted validation errors
// until the workflow validates, the model stops emitting one, or the retry
// budget runs out. Returns the last streamed response.
func (c *Controller) runCorrectionLoop(ctx context.Context, backend agent.Backend, originalMessages []agent.Message, cfg agent.QueryConfig, lastResponse string, result *validation.ValidationResult, w StreamWriter) string {
	maxRetries := c.MaxCorrectionRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxCorrectionRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		notice := fmt.Sprintf("\n\n---\n**Validation found %d error(s). Correcting (attempt %d/%d)...**\n\n",
			len(result.Errors()), attempt, maxRetries)
		if err := w.WriteChunk(notice); err != nil {
			return lastResponse
		}

		correctionMessages := append([]agent.Message{}, originalMessages...)
		correctionMessages = append(correctionMessages,
			agent.Message{Role: agent.RoleAssistant, Content: lastResponse},
			agent.Message{Role: agent.RoleUser, Content: result.FormatForAgent()})

		corrected, err := c.streamQuery(ctx, backend, correctionMessages, cfg, w)
		if err != nil {
			w.WriteChunk(fmt.Sprintf("\n\nError: %s", err))
			return lastResponse
		}

		wf, found := workflow.ExtractFromResponse(corrected)
		if !found {
			// No workflow in the reply; the model likely explained the fix
			// in prose. Do not burn further attempts.
			return corrected
		}

		next := c.Validator.Validate(wf)
		if next.Valid() {
			w.WriteChunk("\n\n**Workflow validated successfully.**\n")
			return corrected
		}

		lastResponse = corrected
		result = next
	}

	w.WriteChunk(fmt.Sprintf("\n\n**Auto-correction could not fix all errors after %d attempts.**\n%s\n",
		maxRetries, result.FormatForAgent()))
	return lastResponse
}
