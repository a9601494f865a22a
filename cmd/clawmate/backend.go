package main

import (
	"log"

	"github.com/clawmate/clawmate/internal/config"
	"github.com/clawmate/clawmate/internal/executor"
	"github.com/clawmate/clawmate/internal/llm"
	"github.com/clawmate/clawmate/internal/orchestrator"
	"github.com/clawmate/clawmate/internal/sandbox"
	"github.com/clawmate/clawmate/internal/security"
	"github.com/clawmate/clawmate/internal/skills"
)

// backend bundles the wired components behind the CLI commands.
type backend struct {
	cfg      *config.Config
	executor *executor.Executor
	sandbox  *sandbox.Runner
	policy   *security.Policy
	registry *skills.Registry
	llm      llm.Client
	orch     *orchestrator.Orchestrator
}

// newBackend wires components from configuration. The model client is
// optional; commands that need one report its absence themselves.
func newBackend(cfg *config.Config) (*backend, error) {
	exec := executor.New(executor.Config{DefaultTimeout: cfg.Agents.Timeout})

	var sbox *sandbox.Runner
	if cfg.Sandbox.Enabled {
		sbox = sandbox.New(sandbox.Config{
			Image:          cfg.Sandbox.Image,
			DefaultTimeout: cfg.Agents.Timeout,
		})
	}

	policy, err := security.NewPolicy(security.Options{
		ApprovalRequired: cfg.Security.ApprovalRequired,
		AllowElevated:    cfg.Security.AllowElevated,
		DenyPatterns:     cfg.Security.DenyPatterns,
	})
	if err != nil {
		return nil, err
	}

	registry := skills.NewRegistry(cfg.Skills.Dir)
	if err := registry.Load(); err != nil {
		return nil, err
	}

	client, model := newLLMClient(cfg)

	orchCfg := orchestrator.Config{
		Capacity:       cfg.Agents.MaxConcurrent,
		DefaultTimeout: cfg.Agents.Timeout,
		DefaultModel:   model,
		SandboxEnabled: cfg.Sandbox.Enabled,
		Executor:       exec,
		LLM:            client,
	}
	if sbox != nil {
		orchCfg.Sandbox = sbox
	}
	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		return nil, err
	}

	return &backend{
		cfg:      cfg,
		executor: exec,
		sandbox:  sbox,
		policy:   policy,
		registry: registry,
		llm:      client,
		orch:     orch,
	}, nil
}

// newLLMClient picks the model backend: Anthropic when an API key is
// configured, Ollama otherwise. Returns a nil client when neither can
// be constructed.
func newLLMClient(cfg *config.Config) (llm.Client, string) {
	if cfg.Anthropic.APIKey != "" {
		client, err := llm.NewAnthropic(llm.AnthropicConfig{
			APIKey: cfg.Anthropic.APIKey,
			Model:  cfg.Anthropic.Model,
		})
		if err == nil {
			return client, cfg.Anthropic.Model
		}
		log.Printf("[clawmate] anthropic client unavailable: %v", err)
	}

	client, err := llm.NewOllama(llm.OllamaConfig{
		Host:    cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.Ollama.Timeout,
	})
	if err != nil {
		log.Printf("[clawmate] ollama client unavailable: %v", err)
		return nil, ""
	}
	return client, cfg.Ollama.Model
}
