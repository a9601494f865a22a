// Package config handles configuration loading and management for clawmate.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for clawmate.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Security  SecurityConfig  `mapstructure:"security"`
	Skills    SkillsConfig    `mapstructure:"skills"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OllamaConfig holds local model backend settings.
type OllamaConfig struct {
	Host    string        `mapstructure:"host"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AgentsConfig holds task orchestration settings.
type AgentsConfig struct {
	// MaxConcurrent bounds how many agent tasks run at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// Timeout is the default per-task timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SandboxConfig holds container execution settings.
type SandboxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Image   string `mapstructure:"image"`
}

// SecurityConfig holds command vetting settings.
type SecurityConfig struct {
	// ApprovalRequired gates dangerous commands behind explicit approval.
	ApprovalRequired bool `mapstructure:"approval_required"`
	// AllowElevated permits elevated execution when approved.
	AllowElevated bool `mapstructure:"allow_elevated"`
	// DenyPatterns extends the built-in denylist.
	DenyPatterns []string `mapstructure:"deny_patterns"`
}

// SkillsConfig holds skill registry settings.
type SkillsConfig struct {
	// Dir is the directory holding skill manifests.
	Dir string `mapstructure:"dir"`
	// Watch enables hot reload of manifests on file changes.
	Watch bool `mapstructure:"watch"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CLAWMATE_* plus ANTHROPIC_API_KEY)
// 2. Project config (.clawmate.yaml in current directory or parent)
// 3. User config (~/.config/clawmate/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: CLAWMATE_SERVER_PORT etc.
	v.SetEnvPrefix("CLAWMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("ollama.host", "OLLAMA_HOST")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("server.host", cfg.Server.Host)
	v.Set("server.port", cfg.Server.Port)
	v.Set("ollama.host", cfg.Ollama.Host)
	v.Set("ollama.model", cfg.Ollama.Model)
	v.Set("ollama.timeout", cfg.Ollama.Timeout.String())
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("agents.max_concurrent", cfg.Agents.MaxConcurrent)
	v.Set("agents.timeout", cfg.Agents.Timeout.String())
	v.Set("sandbox.enabled", cfg.Sandbox.Enabled)
	v.Set("sandbox.image", cfg.Sandbox.Image)
	v.Set("security.approval_required", cfg.Security.ApprovalRequired)
	v.Set("security.allow_elevated", cfg.Security.AllowElevated)
	v.Set("security.deny_patterns", cfg.Security.DenyPatterns)
	v.Set("skills.dir", cfg.Skills.Dir)
	v.Set("skills.watch", cfg.Skills.Watch)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8723)

	v.SetDefault("ollama.host", "http://127.0.0.1:11434")
	v.SetDefault("ollama.model", "llama3.2")
	v.SetDefault("ollama.timeout", "300s")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("agents.max_concurrent", 4)
	v.SetDefault("agents.timeout", "10m")

	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.image", "ubuntu:latest")

	v.SetDefault("security.approval_required", true)
	v.SetDefault("security.allow_elevated", false)
	v.SetDefault("security.deny_patterns", []string{})

	v.SetDefault("skills.dir", defaultSkillsDir())
	v.SetDefault("skills.watch", false)
}

// getUserConfigDir returns the XDG config directory for clawmate.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "clawmate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "clawmate")
	}
	return filepath.Join(home, ".config", "clawmate")
}

// defaultSkillsDir returns the default skill manifest directory.
func defaultSkillsDir() string {
	return filepath.Join(getUserConfigDir(), "skills")
}

// findProjectConfig searches for .clawmate.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".clawmate.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8723,
		},
		Ollama: OllamaConfig{
			Host:    "http://127.0.0.1:11434",
			Model:   "llama3.2",
			Timeout: 300 * time.Second,
		},
		Agents: AgentsConfig{
			MaxConcurrent: 4,
			Timeout:       10 * time.Minute,
		},
		Sandbox: SandboxConfig{
			Enabled: false,
			Image:   "ubuntu:latest",
		},
		Security: SecurityConfig{
			ApprovalRequired: true,
			AllowElevated:    false,
		},
		Skills: SkillsConfig{
			Dir:   defaultSkillsDir(),
			Watch: false,
		},
	}
}
