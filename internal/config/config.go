package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is agentd's example wiring configuration: which store and sandbox
// backend to use, which model to drive the LLM Handler with, and the
// runtime's polling cadence.
type Config struct {
	Stream   StreamConfig   `toml:"stream"`
	LLM      LLMConfig      `toml:"llm"`
	Database DatabaseConfig `toml:"database"`
	Sandbox  SandboxConfig  `toml:"sandbox"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Observer ObserverConfig `toml:"observer"`
}

type StreamConfig struct {
	ID string `toml:"id"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	DoneTool string `toml:"done_tool"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "postgres"
	Path        string `toml:"path"`   // sqlite file path
	PostgresDSN string `toml:"postgres_dsn"`
}

type SandboxConfig struct {
	// WorkspaceRoot is the directory under which cmd/agentd creates a
	// temporary workspace for each fresh sandbox.
	WorkspaceRoot string `toml:"workspace_root"`
}

type RuntimeConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		LLM:      LLMConfig{Provider: "anthropic", Model: "claude-opus-4", DoneTool: "done"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "agentd.db"},
		Sandbox:  SandboxConfig{WorkspaceRoot: filepath.Join(home, "agentd-workspace")},
		Runtime:  RuntimeConfig{PollInterval: 100 * time.Millisecond},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "agentd.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("AGENTD_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AGENTD_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
		cfg.Database.Driver = "postgres"
	}
	if v := os.Getenv("AGENTD_STREAM_ID"); v != "" {
		cfg.Stream.ID = v
	}
	if os.Getenv("AGENTD_OBSERVER_ENABLED") == "true" || os.Getenv("AGENTD_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
