// Package knowledge loads markdown documents with YAML front matter and
// selects a budget-bounded subset relevant to a user message. Documents are
// immutable after load; a reload swaps the whole set.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Priority levels. High-priority documents are always included.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// triggerPhrases maps each core category to domain phrases that boost a
// document's score when they occur in the user message. Categories outside
// this table score only on their own keywords.
var triggerPhrases = map[string][]string{
	"video":        {"video", "wan", "hunyuan", "animatediff", "frames", "motion", "animate", "mochi", "cogvideo", "ltx", "svi", "interpolat"},
	"models":       {"model", "download", "checkpoint", "lora", "civitai", "huggingface", "pony", "flux", "sdxl", "nsfw", "vae"},
	"tuning":       {"blurry", "artifact", "denoise", "cfg", "steps", "sampler", "flickering", "quality", "fix", "issue", "problem", "wrong", "bad", "improve", "better"},
	"custom_nodes": {"custom node", "install", "manager", "impact pack", "ipadapter", "controlnet", "reactor", "detailer"},
	"patterns":     {"workflow", "template", "pattern", "txt2img", "img2img", "upscale", "controlnet"},
}

// modeBudgets are the user-selectable context budget overrides.
var modeBudgets = map[string]int{
	"minimal": 5000,
	"standard": 15000,
	"verbose": 30000,
}

// ollamaSizeBudgets maps model size tokens to budgets, checked in slice
// order. Longer tokens come first so "3b" never matches inside "13b".
var ollamaSizeBudgets = []struct {
	token  string
	budget int
}{
	{"70b", 20000},
	{"32b", 15000},
	{"14b", 12000},
	{"13b", 12000},
	{"8b", 8000},
	{"7b", 8000},
	{"3b", 8000},
	{"1b", 8000},
}

const (
	budgetOllamaSmall = 8000
	budgetClaudeCode  = 30000
	budgetDefault     = 15000
)

// frontMatterPattern splits a document into its YAML header and body.
var frontMatterPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)

// Document is one parsed markdown knowledge file.
type Document struct {
	ID        string
	Title     string
	Keywords  []string
	Category  string
	Priority  string
	Content   string
	Path      string
	CharCount int
}

type frontMatter struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Category string   `yaml:"category"`
	Priority string   `yaml:"priority"`
}

// Manager loads knowledge documents and selects relevant context for the
// system prompt. Safe for concurrent use: LoadAll swaps the document set
// under a write lock, readers take snapshots.
type Manager struct {
	dir string

	mu   sync.RWMutex
	docs []Document
}

// NewManager creates a Manager rooted at dir. Documents live directly in
// dir, user-authored ones in dir/user.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// LoadAll scans the knowledge directory and its user subdirectory for
// markdown files, sorted by filename within each directory. Unreadable or
// unparseable files are skipped.
func (m *Manager) LoadAll() error {
	var docs []Document
	if err := loadDir(m.dir, false, &docs); err != nil {
		return fmt.Errorf("knowledge: load %s: %w", m.dir, err)
	}
	userDir := filepath.Join(m.dir, "user")
	if _, err := os.Stat(userDir); err == nil {
		if err := loadDir(userDir, true, &docs); err != nil {
			return fmt.Errorf("knowledge: load %s: %w", userDir, err)
		}
	}

	m.mu.Lock()
	m.docs = docs
	m.mu.Unlock()
	return nil
}

func loadDir(dir string, userTree bool, docs *[]Document) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, path := range paths {
		if doc, ok := parseFile(path, userTree); ok {
			*docs = append(*docs, doc)
		}
	}
	return nil
}

// parseFile parses one markdown file. A missing header block yields default
// metadata: stem as id, humanized stem as title, priority low, and category
// "user" under the user subtree or "other" elsewhere.
func parseFile(path string, userTree bool) (Document, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false
	}
	text := string(raw)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	match := frontMatterPattern.FindStringSubmatch(text)
	if match == nil {
		category := "other"
		if userTree {
			category = "user"
		}
		content := strings.TrimSpace(text)
		return Document{
			ID:        stem,
			Title:     humanize(stem),
			Category:  category,
			Priority:  PriorityLow,
			Content:   content,
			Path:      path,
			CharCount: len(content),
		}, true
	}

	var meta frontMatter
	if err := yaml.Unmarshal([]byte(match[1]), &meta); err != nil {
		return Document{}, false
	}
	doc := Document{
		ID:       meta.ID,
		Title:    meta.Title,
		Category: meta.Category,
		Priority: meta.Priority,
		Path:     path,
	}
	if doc.ID == "" {
		doc.ID = stem
	}
	if doc.Title == "" {
		doc.Title = stem
	}
	if doc.Category == "" {
		doc.Category = "other"
	}
	if doc.Priority == "" {
		doc.Priority = PriorityLow
	}
	for _, kw := range meta.Keywords {
		doc.Keywords = append(doc.Keywords, strings.ToLower(kw))
	}
	doc.Content = strings.TrimSpace(match[2])
	doc.CharCount = len(doc.Content)
	return doc, true
}

func humanize(stem string) string {
	words := strings.Fields(strings.ReplaceAll(stem, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Documents returns a snapshot of the loaded documents in load order.
func (m *Manager) Documents() []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, len(m.docs))
	copy(out, m.docs)
	return out
}

// SelectRelevant picks documents for a message under a character budget.
// High-priority documents are always included and charged to the budget even
// when they overshoot it. The rest are scored (2 per keyword hit, 3 per
// trigger-phrase hit), sorted by score descending with load order breaking
// ties, and greedily packed.
func (m *Manager) SelectRelevant(message string, budgetChars int, categoriesEnabled map[string]bool) []Document {
	msgLower := strings.ToLower(message)

	var selected []Document
	type scored struct {
		score int
		doc   Document
	}
	var remaining []scored
	budgetUsed := 0

	for _, doc := range m.Documents() {
		if categoriesEnabled != nil && !categoriesEnabled[doc.Category] {
			continue
		}
		if doc.Priority == PriorityHigh {
			selected = append(selected, doc)
			budgetUsed += doc.CharCount
			continue
		}

		score := 0
		for _, kw := range doc.Keywords {
			if strings.Contains(msgLower, kw) {
				score += 2
			}
		}
		for _, phrase := range triggerPhrases[doc.Category] {
			if strings.Contains(msgLower, phrase) {
				score += 3
			}
		}
		if score > 0 {
			remaining = append(remaining, scored{score: score, doc: doc})
		}
	}

	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].score > remaining[j].score
	})

	for _, s := range remaining {
		if budgetUsed+s.doc.CharCount <= budgetChars {
			selected = append(selected, s.doc)
			budgetUsed += s.doc.CharCount
		}
	}
	return selected
}

// Categories returns every category with the titles of its documents, for
// client-side filtering UIs.
func (m *Manager) Categories() map[string][]string {
	out := map[string][]string{}
	for _, doc := range m.Documents() {
		out[doc.Category] = append(out[doc.Category], doc.Title)
	}
	return out
}

// ContextBudget derives the character budget for a backend and model. An
// explicit mode overrides everything; otherwise the local backend's budget
// scales with the model size parsed from its name, the large-context hosted
// backend gets the verbose budget, and everything else the default.
func (m *Manager) ContextBudget(agentName, modelName, contextMode string) int {
	if budget, ok := modeBudgets[contextMode]; ok {
		return budget
	}
	switch agentName {
	case "ollama":
		modelLower := strings.ToLower(modelName)
		for _, sb := range ollamaSizeBudgets {
			if strings.Contains(modelLower, sb.token) {
				return sb.budget
			}
		}
		return budgetOllamaSmall
	case "claude_code":
		return budgetClaudeCode
	}
	return budgetDefault
}

// BuildKnowledgeText selects documents for the message and concatenates them
// into the system prompt's knowledge section. Empty selection yields "".
func (m *Manager) BuildKnowledgeText(message, agentName, modelName, contextMode string, categoriesEnabled map[string]bool) string {
	budget := m.ContextBudget(agentName, modelName, contextMode)
	docs := m.SelectRelevant(message, budget, categoriesEnabled)
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = fmt.Sprintf("# %s\n\n%s", doc.Title, doc.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
