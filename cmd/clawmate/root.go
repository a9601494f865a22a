package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "clawmate",
	Short: "Local AI assistant backend",
	Long: `Clawmate runs shell commands, agent task swarms, and model chats
behind a single local backend.

Core capabilities:
- Executes shell commands with per-line output streaming
- Runs bounded swarms of concurrent agent tasks
- Vets every command against a security policy
- Talks to Ollama or Anthropic model backends
- Loads skill manifests with optional hot reload`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(swarmCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(versionCmd)
}
