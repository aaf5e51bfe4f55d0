// Package config loads runtime configuration for the anuris host:
// defaults, then a TOML file, then ANURIS_* env overrides (env wins).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Agent     AgentConfig     `toml:"agent"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Store     StoreConfig     `toml:"store"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	Proxy       string  `toml:"proxy"`
	Temperature float64 `toml:"temperature"`
	Reasoning   bool    `toml:"reasoning"`
}

type AgentConfig struct {
	MaxRounds    int    `toml:"max_rounds"`
	SystemPrompt string `toml:"system_prompt"`
	Debug        bool   `toml:"debug"`
}

type WorkspaceConfig struct {
	Path string `toml:"path"`
}

type StoreConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return Config{
		LLM:   LLMConfig{Temperature: 0.4},
		Agent: AgentConfig{MaxRounds: 16},
		Workspace: WorkspaceConfig{
			Path: cwd,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(cwd, ".anuris_sessions.db"),
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".anuris_config.toml"
	}
	return filepath.Join(home, ".anuris_config.toml")
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("ANURIS_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ANURIS_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ANURIS_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ANURIS_PROXY"); v != "" {
		cfg.LLM.Proxy = v
	}
	if v := os.Getenv("ANURIS_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = t
		}
	}
	if v := os.Getenv("ANURIS_REASONING"); v == "on" || v == "true" || v == "1" {
		cfg.LLM.Reasoning = true
	}
	if v := os.Getenv("ANURIS_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxRounds = n
		}
	}
	if v := os.Getenv("ANURIS_WORKSPACE"); v != "" {
		cfg.Workspace.Path = v
	}
	if v := os.Getenv("ANURIS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ANURIS_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("ANURIS_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
