package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func populatedKnowledgeDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "user"), 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "core_nodes.md"),
		"---\nid: core_nodes\ntitle: Core Nodes\n"+
			"keywords: [KSampler, checkpoint, VAEDecode, CLIPTextEncode]\n"+
			"category: core\npriority: high\n---\n\n"+
			"Core node documentation content here.\n")
	writeFile(t, filepath.Join(dir, "models.md"),
		"---\nid: models\ntitle: Models Guide\n"+
			"keywords: [FLUX, SDXL, checkpoint, download, civitai]\n"+
			"category: models\npriority: medium\n---\n\n"+
			"Models documentation content here.\n")
	writeFile(t, filepath.Join(dir, "video_advanced.md"),
		"---\nid: video_advanced\ntitle: Advanced Video\n"+
			"keywords: [video, WAN, AnimateDiff, frames, motion]\n"+
			"category: video\npriority: low\n---\n\n"+
			"Video documentation that is a bit longer to test budgets. "+strings.Repeat("x", 5000)+"\n")
	writeFile(t, filepath.Join(dir, "workflow_tuning.md"),
		"---\nid: workflow_tuning\ntitle: Tuning Guide\n"+
			"keywords: [denoise, cfg, steps, sampler, blurry, artifact]\n"+
			"category: tuning\npriority: medium\n---\n\n"+
			"Tuning docs here.\n")
	writeFile(t, filepath.Join(dir, "user", "my_tips.md"),
		"My personal tips about video workflows.\n")
	return dir
}

func loadedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(populatedKnowledgeDir(t))
	if err := m.LoadAll(); err != nil {
		t.Fatal(err)
	}
	return m
}

func docIDs(docs []Document) map[string]bool {
	ids := map[string]bool{}
	for _, d := range docs {
		ids[d.ID] = true
	}
	return ids
}

// ── Parsing ───────────────────────────────────────────────────────────

func TestParseWithFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "core_nodes.md"),
		"---\nid: core_nodes\ntitle: Core ComfyUI Nodes\n"+
			"keywords: [KSampler, checkpoint, VAEDecode]\ncategory: core\npriority: high\n---\n\n"+
			"## Core Nodes\n\nKSampler is the main sampling node.\n")

	doc, ok := parseFile(filepath.Join(dir, "core_nodes.md"), false)
	if !ok {
		t.Fatal("parse failed")
	}
	if doc.ID != "core_nodes" || doc.Title != "Core ComfyUI Nodes" {
		t.Errorf("id = %q, title = %q", doc.ID, doc.Title)
	}
	if doc.Category != "core" || doc.Priority != PriorityHigh {
		t.Errorf("category = %q, priority = %q", doc.Category, doc.Priority)
	}
	for _, kw := range []string{"ksampler", "checkpoint", "vaedecode"} {
		found := false
		for _, have := range doc.Keywords {
			if have == kw {
				found = true
			}
		}
		if !found {
			t.Errorf("keyword %q missing (keywords stored lowercased)", kw)
		}
	}
	if !strings.Contains(doc.Content, "KSampler is the main") {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.CharCount != len(doc.Content) {
		t.Errorf("CharCount = %d", doc.CharCount)
	}
}

func TestParseWithoutFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "user_notes.md"), "Some plain user notes about workflows.\n")

	doc, ok := parseFile(filepath.Join(dir, "user_notes.md"), true)
	if !ok {
		t.Fatal("parse failed")
	}
	if doc.ID != "user_notes" {
		t.Errorf("id = %q", doc.ID)
	}
	if doc.Category != "user" || doc.Priority != PriorityLow {
		t.Errorf("category = %q, priority = %q", doc.Category, doc.Priority)
	}
	if len(doc.Keywords) != 0 {
		t.Errorf("keywords = %v", doc.Keywords)
	}
	if !strings.Contains(doc.Content, "plain user notes") {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestParseInvalidYAMLSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.md"), "---\n[invalid: yaml: {{{\n---\ncontent\n")
	if _, ok := parseFile(filepath.Join(dir, "bad.md"), false); ok {
		t.Error("invalid YAML header accepted")
	}
}

func TestParseMissingOptionalFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "minimal.md"), "---\ntitle: Minimal\n---\nContent.\n")

	doc, ok := parseFile(filepath.Join(dir, "minimal.md"), false)
	if !ok {
		t.Fatal("parse failed")
	}
	if doc.ID != "minimal" || doc.Title != "Minimal" {
		t.Errorf("id = %q, title = %q", doc.ID, doc.Title)
	}
	if doc.Category != "other" || doc.Priority != PriorityLow {
		t.Errorf("category = %q, priority = %q", doc.Category, doc.Priority)
	}
}

// ── LoadAll ───────────────────────────────────────────────────────────

func TestLoadAllBothDirs(t *testing.T) {
	m := loadedManager(t)
	ids := docIDs(m.Documents())
	for _, want := range []string{"core_nodes", "models", "video_advanced", "workflow_tuning", "my_tips"} {
		if !ids[want] {
			t.Errorf("document %q not loaded", want)
		}
	}
}

func TestLoadAllSortedMainBeforeUser(t *testing.T) {
	m := loadedManager(t)
	docs := m.Documents()
	var mainIDs []string
	for _, d := range docs {
		if d.Category != "user" {
			mainIDs = append(mainIDs, d.ID)
		}
	}
	for i := 1; i < len(mainIDs); i++ {
		if mainIDs[i-1] >= mainIDs[i] {
			t.Errorf("main dir not sorted: %v", mainIDs)
		}
	}
	if docs[len(docs)-1].ID != "my_tips" {
		t.Errorf("user docs should load after main docs: %v", docIDs(docs))
	}
}

func TestLoadAllEmptyDir(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if len(m.Documents()) != 0 {
		t.Errorf("documents = %v", m.Documents())
	}
}

// ── SelectRelevant ────────────────────────────────────────────────────

func TestHighPriorityAlwaysIncluded(t *testing.T) {
	m := loadedManager(t)
	ids := docIDs(m.SelectRelevant("hello world", 100000, nil))
	if !ids["core_nodes"] {
		t.Error("high-priority document not included")
	}
}

func TestTriggerPhraseSelection(t *testing.T) {
	m := loadedManager(t)
	cases := []struct {
		message string
		want    string
	}{
		{"help me with video generation", "video_advanced"},
		{"where can I download a flux model?", "models"},
		{"my image is blurry, how to fix?", "workflow_tuning"},
	}
	for _, tc := range cases {
		ids := docIDs(m.SelectRelevant(tc.message, 100000, nil))
		if !ids[tc.want] {
			t.Errorf("message %q did not select %q", tc.message, tc.want)
		}
	}
}

func TestBudgetLimitsSelection(t *testing.T) {
	m := loadedManager(t)
	ids := docIDs(m.SelectRelevant("video model download blurry", 100, nil))
	if !ids["core_nodes"] {
		t.Error("high-priority document dropped under tight budget")
	}
	if ids["video_advanced"] {
		t.Error("oversized document admitted past the budget")
	}
}

func TestCategoryFilterDropsHighPriority(t *testing.T) {
	m := loadedManager(t)
	ids := docIDs(m.SelectRelevant("help with video", 100000, map[string]bool{"video": true}))
	if ids["core_nodes"] {
		t.Error("disabled category document included despite high priority")
	}
	if !ids["video_advanced"] {
		t.Error("enabled category document not selected")
	}
}

func TestNoMatchingMessage(t *testing.T) {
	m := loadedManager(t)
	ids := docIDs(m.SelectRelevant("something completely unrelated xyz123", 100000, nil))
	if !ids["core_nodes"] {
		t.Error("high-priority document missing")
	}
	if ids["models"] || ids["video_advanced"] {
		t.Errorf("zero-score documents selected: %v", ids)
	}
}

// ── Categories ────────────────────────────────────────────────────────

func TestCategories(t *testing.T) {
	m := loadedManager(t)
	cats := m.Categories()
	for _, want := range []string{"core", "models", "video", "tuning", "user"} {
		if _, ok := cats[want]; !ok {
			t.Errorf("category %q missing: %v", want, cats)
		}
	}
	found := false
	for _, title := range cats["models"] {
		if title == "Models Guide" {
			found = true
		}
	}
	if !found {
		t.Errorf("title missing from category: %v", cats["models"])
	}
}

// ── ContextBudget ─────────────────────────────────────────────────────

func TestContextBudget(t *testing.T) {
	m := NewManager("")
	cases := []struct {
		agent, model, mode string
		want               int
	}{
		{"any", "", "minimal", 5000},
		{"any", "", "standard", 15000},
		{"any", "", "verbose", 30000},
		{"ollama", "qwen2.5:7b", "unknown_mode", 8000},
		{"ollama", "llama3.1:70b", "unknown_mode", 20000},
		{"ollama", "codellama:13b", "unknown_mode", 12000},
		{"ollama", "qwen3:32b", "unknown_mode", 15000},
		{"ollama", "some_unknown_model", "unknown_mode", 8000},
		{"claude_code", "", "unknown_mode", 30000},
		{"gemini", "", "unknown_mode", 15000},
		// Mode overrides agent defaults.
		{"ollama", "qwen:7b", "minimal", 5000},
	}
	for _, tc := range cases {
		if got := m.ContextBudget(tc.agent, tc.model, tc.mode); got != tc.want {
			t.Errorf("ContextBudget(%q, %q, %q) = %d, want %d", tc.agent, tc.model, tc.mode, got, tc.want)
		}
	}
}

// ── BuildKnowledgeText ────────────────────────────────────────────────

func TestBuildKnowledgeText(t *testing.T) {
	m := loadedManager(t)
	text := m.BuildKnowledgeText("help me with models", "default", "", "verbose", nil)
	for _, want := range []string{"# Core Nodes", "# Models Guide", "---"} {
		if !strings.Contains(text, want) {
			t.Errorf("knowledge text missing %q", want)
		}
	}
}

func TestBuildKnowledgeTextEmptyWithFilter(t *testing.T) {
	m := loadedManager(t)
	text := m.BuildKnowledgeText("hello", "default", "", "verbose", map[string]bool{"nonexistent_category": true})
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestBuildKnowledgeTextRespectsBudget(t *testing.T) {
	m := loadedManager(t)
	minimal := m.BuildKnowledgeText("video model download", "default", "", "minimal", nil)
	verbose := m.BuildKnowledgeText("video model download", "default", "", "verbose", nil)
	if len(minimal) > len(verbose) {
		t.Errorf("minimal (%d chars) exceeds verbose (%d chars)", len(minimal), len(verbose))
	}
}
