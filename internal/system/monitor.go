// Package system probes the ComfyUI host for hardware and asset status:
// GPU memory, installed models, and custom-node capability coverage. All
// probes degrade to empty reports on failure.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// GPU describes one device reported by the host.
type GPU struct {
	Name        string `json:"name"`
	VRAMTotalMB int    `json:"vram_total_mb"`
	VRAMFreeMB  int    `json:"vram_free_mb"`
}

// GPUReport is the host's GPU status.
type GPUReport struct {
	Available bool  `json:"available"`
	GPUs      []GPU `json:"gpus"`
}

// ModelReport lists the installed models by kind.
type ModelReport struct {
	Checkpoints []string `json:"checkpoints"`
	Loras       []string `json:"loras"`
	VAEs        []string `json:"vaes"`
	ControlNets []string `json:"controlnets"`
}

// CustomNodeReport summarizes installed custom-node capabilities, derived
// from the node catalog's class names.
type CustomNodeReport struct {
	Found        bool                `json:"found"`
	TotalCount   int                 `json:"total_count"`
	Capabilities map[string][]string `json:"node_capabilities"`
}

// capabilityMarkers maps a capability bucket to class-name substrings that
// indicate it. Matching is case-insensitive.
var capabilityMarkers = map[string][]string{
	"video":      {"animatediff", "vhs_", "videohelper", "wanvideo", "hunyuanvideo", "videocombine"},
	"face":       {"facedetailer", "reactor", "impactpack", "facerestore", "detailerfor"},
	"upscale":    {"ultimatesdupscale", "upscalemodelloader", "imageupscale"},
	"controlnet": {"controlnetapply", "controlnetloader", "preprocessor", "aux_"},
}

// Monitor probes one ComfyUI host.
type Monitor struct {
	baseURL string
	client  *http.Client
}

// NewMonitor creates a Monitor for the given ComfyUI base URL.
func NewMonitor(baseURL string) *Monitor {
	return &Monitor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: probeTimeout},
	}
}

// GPUInfo fetches GET /system_stats and converts device memory to MB.
// Unreachable hosts yield Available=false.
func (m *Monitor) GPUInfo(ctx context.Context) GPUReport {
	var stats struct {
		Devices []struct {
			Name      string  `json:"name"`
			Type      string  `json:"type"`
			VRAMTotal float64 `json:"vram_total"`
			VRAMFree  float64 `json:"vram_free"`
		} `json:"devices"`
	}
	if !m.getJSON(ctx, "/system_stats", &stats) {
		return GPUReport{}
	}

	report := GPUReport{}
	for _, d := range stats.Devices {
		if d.Type == "cpu" {
			continue
		}
		report.GPUs = append(report.GPUs, GPU{
			Name:        d.Name,
			VRAMTotalMB: int(d.VRAMTotal / (1024 * 1024)),
			VRAMFreeMB:  int(d.VRAMFree / (1024 * 1024)),
		})
	}
	report.Available = len(report.GPUs) > 0
	return report
}

// AvailableModels fetches the per-folder model listings.
func (m *Monitor) AvailableModels(ctx context.Context) ModelReport {
	return ModelReport{
		Checkpoints: m.modelFolder(ctx, "checkpoints"),
		Loras:       m.modelFolder(ctx, "loras"),
		VAEs:        m.modelFolder(ctx, "vae"),
		ControlNets: m.modelFolder(ctx, "controlnet"),
	}
}

func (m *Monitor) modelFolder(ctx context.Context, folder string) []string {
	var names []string
	if !m.getJSON(ctx, "/models/"+folder, &names) {
		return nil
	}
	return names
}

// ClassifyCapabilities buckets class names by the capability they indicate.
// The caller supplies the catalog's class types; an empty catalog yields
// Found=false.
func ClassifyCapabilities(classTypes []string) CustomNodeReport {
	report := CustomNodeReport{
		TotalCount:   len(classTypes),
		Capabilities: map[string][]string{},
	}
	if len(classTypes) == 0 {
		return report
	}
	report.Found = true

	for _, ct := range classTypes {
		lower := strings.ToLower(ct)
		for capability, markers := range capabilityMarkers {
			for _, marker := range markers {
				if strings.Contains(lower, marker) {
					report.Capabilities[capability] = appendUnique(report.Capabilities[capability], ct)
					break
				}
			}
		}
	}
	for _, names := range report.Capabilities {
		sort.Strings(names)
	}
	return report
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func (m *Monitor) getJSON(ctx context.Context, path string, out any) bool {
	if m.baseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(out) == nil
}

// Describe renders a one-line GPU summary for logs.
func (r GPUReport) Describe() string {
	if !r.Available || len(r.GPUs) == 0 {
		return "no GPU detected"
	}
	gpu := r.GPUs[0]
	return fmt.Sprintf("%s (%dMB free of %dMB)", gpu.Name, gpu.VRAMFreeMB, gpu.VRAMTotalMB)
}
