package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/soochol/comfypilot/internal/config"
)

const defaultClaudeBinary = "claude"

var _ Backend = (*ClaudeCodeBackend)(nil)

// ClaudeCodeBackend shells out to the Claude Code CLI (`claude -p`). This
// allows using a Claude subscription without an API key. Output is streamed
// from the subprocess stdout.
type ClaudeCodeBackend struct {
	binaryPath string
	models     []string
}

// NewClaudeCodeBackend locates the claude binary on PATH or uses the
// provided path. If "claude" is not on PATH, common installation locations
// are checked.
func NewClaudeCodeBackend(binaryPath ...string) *ClaudeCodeBackend {
	bin := defaultClaudeBinary
	if len(binaryPath) > 0 && binaryPath[0] != "" {
		bin = binaryPath[0]
	}
	if bin == defaultClaudeBinary {
		if _, err := exec.LookPath(bin); err != nil {
			home, _ := os.UserHomeDir()
			for _, candidate := range []string{
				home + "/.local/bin/claude",
				"/usr/local/bin/claude",
			} {
				if _, err := os.Stat(candidate); err == nil {
					bin = candidate
					break
				}
			}
		}
	}
	return &ClaudeCodeBackend{
		binaryPath: bin,
		models:     []string{"sonnet", "opus", "haiku"},
	}
}

func (c *ClaudeCodeBackend) Name() string              { return "claude_code" }
func (c *ClaudeCodeBackend) DisplayName() string       { return "Claude Code (CLI)" }
func (c *ClaudeCodeBackend) SupportedModels() []string { return c.models }

// IsAvailable reports whether the CLI binary is resolvable.
func (c *ClaudeCodeBackend) IsAvailable(ctx context.Context) bool {
	if strings.Contains(c.binaryPath, "/") {
		_, err := os.Stat(c.binaryPath)
		return err == nil
	}
	_, err := exec.LookPath(c.binaryPath)
	return err == nil
}

// Query runs `claude -p` once per call and streams its stdout. The
// transcript is flattened into a single prompt on stdin; the system prompt
// travels as a CLI flag.
func (c *ClaudeCodeBackend) Query(ctx context.Context, messages []Message, cfg QueryConfig) (<-chan StreamChunk, error) {
	cfg = cfg.withDefaults()

	var prompt strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			prompt.WriteString(m.Content)
			prompt.WriteString("\n")
		case RoleAssistant:
			prompt.WriteString("[Assistant]: ")
			prompt.WriteString(m.Content)
			prompt.WriteString("\n\n[User]: ")
		}
	}

	args := []string{"-p"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", cfg.SystemPrompt)
	}
	args = append(args, "--output-format", "text")

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	// Remove CLAUDECODE env var to avoid nested session detection.
	cmd.Env = filterEnv(os.Environ(), "CLAUDECODE")
	cmd.Stdin = strings.NewReader(prompt.String())

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claude_code: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("claude_code: start: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		reader := bufio.NewReader(stdout)
		buf := make([]byte, 4096)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				select {
				case out <- StreamChunk{Content: string(buf[:n])}:
				case <-ctx.Done():
					cmd.Wait()
					return
				}
			}
			if err != nil {
				break
			}
		}

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			errMsg := strings.TrimSpace(stderr.String())
			if errMsg == "" {
				errMsg = err.Error()
			}
			out <- StreamChunk{Err: fmt.Errorf("claude_code: %s", errMsg)}
		}
	}()
	return out, nil
}

// filterEnv returns a copy of env with any variables matching the given key
// removed.
func filterEnv(env []string, key string) []string {
	prefix := key + "="
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func init() {
	RegisterFactory("claude_code", func(name string, cfg config.AgentConfig) Backend {
		return NewClaudeCodeBackend()
	})
}
