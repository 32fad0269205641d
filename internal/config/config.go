package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	ComfyUI   ComfyUIConfig          `yaml:"comfyui"`
	Agents    map[string]AgentConfig `yaml:"agents"`
	Knowledge KnowledgeConfig        `yaml:"knowledge"`
	Chat      ChatConfig             `yaml:"chat"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ComfyUIConfig points at the execution host.
type ComfyUIConfig struct {
	URL string `yaml:"url"`
}

// AgentConfig holds one backend's settings.
type AgentConfig struct {
	Type   string   `yaml:"type"`    // e.g. "ollama", "claude_code", "gemini"
	URL    string   `yaml:"url"`     // base URL for HTTP backends
	APIKey string   `yaml:"api_key"` // API key for hosted backends
	Models []string `yaml:"models"`  // preferred model list, first is the default
}

// KnowledgeConfig locates the markdown knowledge documents.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"`
}

// ChatConfig holds orchestration settings.
type ChatConfig struct {
	MaxCorrectionRetries int `yaml:"max_correction_retries"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		ComfyUI: ComfyUIConfig{
			URL: "http://127.0.0.1:8188",
		},
		Agents: map[string]AgentConfig{},
		Knowledge: KnowledgeConfig{
			Dir: "knowledge",
		},
		Chat: ChatConfig{
			MaxCorrectionRetries: 3,
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Ensure Agents map is never nil even if YAML has "agents: {}" or omits it.
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns sensible defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded config.
func applyEnv(cfg *Config) {
	if url := os.Getenv("COMFYUI_URL"); url != "" {
		cfg.ComfyUI.URL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if agent, ok := cfg.Agents["gemini"]; ok && agent.APIKey == "" {
			agent.APIKey = key
			cfg.Agents["gemini"] = agent
		}
	}
}
