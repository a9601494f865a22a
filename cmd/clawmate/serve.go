package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/server"
	"github.com/clawmate/clawmate/internal/skills"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant backend server",
	Long: `Start the HTTP and WebSocket API.

Exposes command execution, agent task management, skills, chat, and
system endpoints on the configured address. Stops cleanly on SIGINT
or SIGTERM, cancelling any running agent tasks first.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("wire backend: %w", err)
	}

	if cfg.Skills.Watch {
		watcher, err := skills.Watch(b.registry)
		if err != nil {
			log.Printf("[clawmate] skills watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	model := cfg.Ollama.Model
	if cfg.Anthropic.APIKey != "" {
		model = cfg.Anthropic.Model
	}
	srv := server.New(server.Options{
		Addr:         cfg.Server.Addr(),
		Debug:        serveDebug,
		DefaultModel: model,
	}, b.orch, b.executor, b.policy, b.registry, b.llm)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := b.orch.Shutdown(shutdownCtx); err != nil {
		log.Printf("[clawmate] orchestrator shutdown: %v", err)
	}
	return srv.Stop(shutdownCtx)
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable request logging")
}
