package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const appName = "seeky"

// ModelConfig selects the language model driving a session.
type ModelConfig struct {
	Provider   string `json:"provider"` // "anthropic", "openai", "google" or "scripted"
	Name       string `json:"name"`
	APIKeyEnv  string `json:"api_key_env,omitempty"` // defaults per provider
	MaxTokens  int    `json:"max_tokens,omitempty"`
	ScriptPath string `json:"script_path,omitempty"` // scripted provider only
}

// SandboxConfig carries the defaults used when no sandbox flag is given.
type SandboxConfig struct {
	Mode                     string   `json:"mode,omitempty"` // read-only, workspace-write, danger-full-access
	AdditionalReadOnlyPaths  []string `json:"additional_read_only_paths,omitempty"`
	AdditionalReadWritePaths []string `json:"additional_read_write_paths,omitempty"`
	// BestEffort lets Landlock degrade to the strongest ABI the kernel offers.
	BestEffort bool `json:"best_effort"`
}

// MCPConfig stores external MCP servers the agent may call.
type MCPConfig struct {
	Servers map[string]*MCPServerConfig `json:"servers"`
}

// MCPServerConfig describes a stdio MCP server.
type MCPServerConfig struct {
	Command  []string          `json:"command"`
	Env      map[string]string `json:"env,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}

// Config represents application configuration
type Config struct {
	WorkingDir     string        `json:"working_dir"`
	LogLevel       string        `json:"log_level"` // debug, info, warn, error, none
	LogPath        string        `json:"log_path"`
	Model          ModelConfig   `json:"model"`
	PolicyPath     string        `json:"policy_path,omitempty"`
	ToolPolicyPath string        `json:"tool_policy_path,omitempty"`
	JournalPath    string        `json:"journal_path,omitempty"`
	CommandTimeout int           `json:"command_timeout_seconds"`
	Sandbox        SandboxConfig `json:"sandbox"`
	MCP            MCPConfig     `json:"mcp"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		return defaultConfigDir()
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		WorkingDir: ".",
		LogLevel:   "info",
		LogPath:    filepath.Join(defaultStateDir(), appName+".log"),
		Model: ModelConfig{
			Provider:  "anthropic",
			Name:      "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
		CommandTimeout: 120,
		Sandbox:        SandboxConfig{BestEffort: true},
		MCP:            MCPConfig{Servers: make(map[string]*MCPServerConfig)},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "."
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MCP.Servers == nil {
		cfg.MCP.Servers = make(map[string]*MCPServerConfig)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies SEEKY_* environment overrides.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("SEEKY_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEKY_LOG_PATH")); v != "" {
		c.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SEEKY_MODEL")); v != "" {
		c.Model.Name = v
	}
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Timeout returns the per-command timeout. Zero leaves the choice to the
// session default.
func (c *Config) Timeout() time.Duration {
	if c.CommandTimeout <= 0 {
		return 0
	}
	return time.Duration(c.CommandTimeout) * time.Second
}

// EnabledServers lists MCP servers that are not disabled, sorted by name.
func (c *Config) EnabledServers() []string {
	names := make([]string, 0, len(c.MCP.Servers))
	for name, srv := range c.MCP.Servers {
		if srv == nil || srv.Disabled || len(srv.Command) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetConfigPath returns the default config file location.
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
