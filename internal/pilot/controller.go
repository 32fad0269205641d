// Package pilot coordinates the chat flow: prompt assembly from knowledge
// and host status, backend invocation, streaming, and the validation
// correction loop.
package pilot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/soochol/comfypilot/internal/agent"
	"github.com/soochol/comfypilot/internal/knowledge"
	"github.com/soochol/comfypilot/internal/system"
	"github.com/soochol/comfypilot/internal/validation"
)

const defaultMaxCorrectionRetries = 3

// promptTruncateLen caps CLIP prompt text in the workflow context.
const promptTruncateLen = 200

// Controller wires the orchestration dependencies together. Conversation
// transcripts are kept per session id, append-only.
type Controller struct {
	Knowledge            *knowledge.Manager
	Registry             *validation.NodeRegistry
	Validator            *validation.WorkflowValidator
	Monitor              *system.Monitor
	Agents               *agent.Registry
	MaxCorrectionRetries int

	mu            sync.Mutex
	conversations map[string][]agent.Message
}

// NewController creates a Controller with the default retry budget.
func NewController(km *knowledge.Manager, reg *validation.NodeRegistry, mon *system.Monitor, agents *agent.Registry) *Controller {
	return &Controller{
		Knowledge:            km,
		Registry:             reg,
		Validator:            validation.NewWorkflowValidator(reg),
		Monitor:              mon,
		Agents:               agents,
		MaxCorrectionRetries: defaultMaxCorrectionRetries,
		conversations:        map[string][]agent.Message{},
	}
}

// NewSessionID mints a session identifier for clients that did not send one.
func NewSessionID() string {
	return uuid.NewString()
}

// History returns a copy of the transcript for a session.
func (c *Controller) History(sessionID string) []agent.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.conversations[sessionID]
	out := make([]agent.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendHistory records messages on a session's transcript.
func (c *Controller) AppendHistory(sessionID string, msgs ...agent.Message) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations[sessionID] = append(c.conversations[sessionID], msgs...)
}

// BuildSystemContext renders the host status section of the system prompt:
// GPU memory with a model-tier recommendation, installed models, and
// custom-node capability coverage.
func (c *Controller) BuildSystemContext(ctx context.Context) string {
	lines := []string{"## CURRENT SYSTEM STATUS"}

	gpuInfo := c.Monitor.GPUInfo(ctx)
	if gpuInfo.Available && len(gpuInfo.GPUs) > 0 {
		gpu := gpuInfo.GPUs[0]
		lines = append(lines, fmt.Sprintf("**GPU**: %s, %dMB VRAM free of %dMB",
			gpu.Name, gpu.VRAMFreeMB, gpu.VRAMTotalMB))
		switch {
		case gpu.VRAMFreeMB < 6000:
			lines = append(lines, "  -> Low VRAM: Recommend SD 1.5, fp8 models, tiled VAE")
		case gpu.VRAMFreeMB < 10000:
			lines = append(lines, "  -> Medium VRAM: SDXL OK, video with fewer frames")
		case gpu.VRAMFreeMB < 16000:
			lines = append(lines, "  -> Good VRAM: FLUX fp8 OK, most video workflows")
		default:
			lines = append(lines, "  -> High VRAM: All models supported")
		}
	} else {
		lines = append(lines, "**GPU**: Information unavailable")
	}

	models := c.Monitor.AvailableModels(ctx)
	if len(models.Checkpoints) > 0 {
		shown := models.Checkpoints
		if len(shown) > 5 {
			shown = shown[:5]
		}
		lines = append(lines, fmt.Sprintf("\n**Available checkpoints**: %s", strings.Join(shown, ", ")))
		if len(models.Checkpoints) > 5 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(models.Checkpoints)-5))
		}
	}
	if len(models.Loras) > 0 {
		lines = append(lines, fmt.Sprintf("**LoRAs**: %d available", len(models.Loras)))
	}
	if len(models.ControlNets) > 0 {
		shown := models.ControlNets
		if len(shown) > 3 {
			shown = shown[:3]
		}
		lines = append(lines, fmt.Sprintf("**ControlNets**: %s", strings.Join(shown, ", ")))
	}

	if c.Registry.IsLoaded() {
		report := system.ClassifyCapabilities(c.Registry.AllClassTypes())
		if report.Found {
			lines = append(lines, fmt.Sprintf("\n**Custom nodes installed**: %d node types", report.TotalCount))
			for _, bucket := range []struct{ key, label string }{
				{"video", "Video"},
				{"face", "Face processing"},
				{"upscale", "Upscaling"},
				{"controlnet", "ControlNet"},
			} {
				if names := report.Capabilities[bucket.key]; len(names) > 0 {
					lines = append(lines, fmt.Sprintf("  - %s: %s", bucket.label, strings.Join(names, ", ")))
				}
			}

			var missing []string
			if len(report.Capabilities["video"]) == 0 {
				missing = append(missing, "video generation (AnimateDiff/WAN)")
			}
			if len(report.Capabilities["face"]) == 0 {
				missing = append(missing, "face processing (Impact-Pack)")
			}
			if len(report.Capabilities["controlnet"]) == 0 {
				missing = append(missing, "ControlNet preprocessors")
			}
			if len(missing) > 0 {
				lines = append(lines, fmt.Sprintf("\n  **Missing for full capability**: %s", strings.Join(missing, ", ")))
				lines = append(lines, "  -> Suggest installation if user needs these features")
			}
		}
	}

	return strings.Join(lines, "\n")
}

// BuildWorkflowContext summarizes the client's current workflow (UI graph
// format: a nodes array with widgets_values). Non-verbose mode is a
// one-line per-type tally for small models.
func BuildWorkflowContext(wf map[string]any, verbose bool) string {
	nodes, _ := wf["nodes"].([]any)
	links, _ := wf["links"].([]any)

	if len(nodes) == 0 {
		return "## CURRENT WORKFLOW\n(Empty workflow)"
	}

	if !verbose {
		counts := map[string]int{}
		for _, n := range nodes {
			node, _ := n.(map[string]any)
			counts[nodeType(node)]++
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, len(types))
		for i, t := range types {
			if counts[t] > 1 {
				parts[i] = fmt.Sprintf("%s(%d)", t, counts[t])
			} else {
				parts[i] = t
			}
		}
		return fmt.Sprintf("## CURRENT WORKFLOW (%d nodes): %s", len(nodes), strings.Join(parts, ", "))
	}

	lines := []string{
		"## CURRENT WORKFLOW (User's active workflow in ComfyUI)",
		"The user has shared their current workflow. Analyze it to provide accurate modifications.",
		"",
		fmt.Sprintf("**Node count**: %d", len(nodes)),
		fmt.Sprintf("**Connection count**: %d", len(links)),
		"",
	}

	counts := map[string]int{}
	for _, n := range nodes {
		node, _ := n.(map[string]any)
		counts[nodeType(node)]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	lines = append(lines, "**Nodes by type**:")
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("- %s: %d", t, counts[t]))
	}

	lines = append(lines, "", "**Node details**:")
	for _, n := range nodes {
		node, _ := n.(map[string]any)
		lines = appendNodeDetails(lines, node)
	}

	lines = append(lines, "",
		"When suggesting modifications, reference specific node IDs and parameter names.",
		"Provide the exact values to change (from -> to).")
	return strings.Join(lines, "\n")
}

func nodeType(node map[string]any) string {
	if t, ok := node["type"].(string); ok && t != "" {
		return t
	}
	return "Unknown"
}

func appendNodeDetails(lines []string, node map[string]any) []string {
	nt := nodeType(node)
	widgets, _ := node["widgets_values"].([]any)
	if len(widgets) == 0 {
		return lines
	}

	id := node["id"]
	if id == nil {
		id = "?"
	}
	title, _ := node["title"].(string)
	if title == "" {
		title = nt
	}
	lines = append(lines, fmt.Sprintf("\n[%v] %s (%s):", id, title, nt))

	switch {
	case strings.Contains(nt, "KSampler"):
		lines = appendNamedWidgets(lines, widgets, "seed", "steps", "cfg", "sampler_name", "scheduler", "denoise")
	case strings.Contains(nt, "EmptyLatentImage"):
		lines = appendNamedWidgets(lines, widgets, "width", "height", "batch_size")
	case strings.Contains(nt, "CLIPTextEncode"), strings.Contains(nt, "CLIP"):
		text := fmt.Sprintf("%v", widgets[0])
		if len(text) > promptTruncateLen {
			text = text[:promptTruncateLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("  prompt: %q", text))
	case strings.Contains(nt, "VAE"):
		if strings.Contains(nt, "Tiled") {
			lines = append(lines, fmt.Sprintf("  tile_size: %v", widgets[0]))
		}
	case strings.Contains(nt, "CheckpointLoader"):
		lines = append(lines, fmt.Sprintf("  checkpoint: %v", widgets[0]))
	case strings.Contains(nt, "LoraLoader"):
		lines = appendNamedWidgets(lines, widgets, "lora_name", "strength_model", "strength_clip")
	case strings.Contains(nt, "ControlNet"):
		lines = appendNamedWidgets(lines, widgets, "strength", "start_percent", "end_percent")
	case strings.Contains(nt, "AnimateDiff"):
		lines = append(lines, fmt.Sprintf("  (AnimateDiff node with %d parameters)", len(widgets)))
	case strings.Contains(nt, "Video"):
		for i, val := range widgets {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("  param_%d: %v", i, val))
		}
	default:
		if len(widgets) <= 5 {
			lines = append(lines, fmt.Sprintf("  widgets: %v", widgets))
		}
	}
	return lines
}

func appendNamedWidgets(lines []string, widgets []any, names ...string) []string {
	for i, name := range names {
		if i < len(widgets) {
			lines = append(lines, fmt.Sprintf("  %s: %v", name, widgets[i]))
		}
	}
	return lines
}

// ComposeSystemPrompt joins the prompt sections, omitting empty ones.
func ComposeSystemPrompt(base, knowledgeText, systemContext, workflowContext string) string {
	prompt := base
	if knowledgeText != "" {
		prompt += "\n\n" + knowledgeText
	}
	prompt += "\n\n" + systemContext
	if workflowContext != "" {
		prompt += "\n\n" + workflowContext
	}
	return prompt
}
