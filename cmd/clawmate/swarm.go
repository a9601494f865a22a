package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/tui"
	"github.com/clawmate/clawmate/pkg/models"
)

var (
	swarmPrompts     bool
	swarmWatch       bool
	swarmSandbox     bool
	swarmConcurrency int
	swarmModel       string
)

var swarmCmd = &cobra.Command{
	Use:   "swarm <task> [task...]",
	Short: "Run tasks concurrently as an agent swarm",
	Long: `Run several tasks at once under the concurrency gate.

Each argument is a shell command by default, or a model prompt with
--prompts. Results print in submission order once every task finishes.
With --watch, a live dashboard shows task states as they change.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSwarm,
}

func runSwarm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if swarmConcurrency > 0 {
		cfg.Agents.MaxConcurrent = swarmConcurrency
	}

	b, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("wire backend: %w", err)
	}

	tasks := make([]models.Task, len(args))
	for i, arg := range args {
		task := models.Task{
			ID:      fmt.Sprintf("task-%d", i+1),
			Sandbox: swarmSandbox,
			Model:   swarmModel,
		}
		if swarmPrompts {
			task.Prompt = arg
		} else {
			fields := strings.Fields(arg)
			task.Command = fields[0]
			task.Args = fields[1:]
		}
		tasks[i] = task
	}

	for _, task := range tasks {
		if !task.IsCommand() {
			continue
		}
		req := models.ExecutionRequest{Command: task.Command, Args: task.Args}
		if verdict := b.policy.Vet(req.CommandLine(), false); !verdict.Allowed() {
			return fmt.Errorf("task %q rejected: %s", req.CommandLine(), verdict.Reason)
		}
	}

	if swarmWatch {
		return runSwarmWatch(cmd.Context(), b, tasks, args)
	}

	results, err := b.orch.RunSwarm(cmd.Context(), tasks)
	if err != nil {
		return err
	}
	printSwarmResults(args, results)
	return nil
}

// runSwarmWatch submits the tasks and drives the live dashboard until
// every task is terminal or the user quits.
func runSwarmWatch(ctx context.Context, b *backend, tasks []models.Task, labels []string) error {
	for _, task := range tasks {
		if _, err := b.orch.Submit(task); err != nil {
			return err
		}
	}

	snapshot := func() []tui.TaskRow {
		rows := make([]tui.TaskRow, len(tasks))
		for i, task := range tasks {
			row := tui.TaskRow{ID: task.ID, Label: labels[i]}
			if state, err := b.orch.State(task.ID); err == nil {
				row.State = state
			}
			if result, ok := b.orch.Results().Get(task.ID); ok {
				row.Duration = result.Duration
				row.Error = result.Error
			}
			rows[i] = row
		}
		return rows
	}

	// The dashboard corrupts interleaved log output.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	aborted, err := tui.RunSwarmDashboard("clawmate swarm", snapshot)
	log.SetOutput(originalOutput)
	if err != nil {
		return err
	}

	if aborted {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return b.orch.Shutdown(shutdownCtx)
	}

	results := make([]models.TaskResult, 0, len(tasks))
	for _, task := range tasks {
		result, err := b.orch.Await(ctx, task.ID)
		if err != nil {
			return err
		}
		results = append(results, result)
	}
	printSwarmResults(labels, results)
	return nil
}

func printSwarmResults(labels []string, results []models.TaskResult) {
	ok := 0
	for i, result := range results {
		label := result.TaskID
		if i < len(labels) {
			label = labels[i]
		}
		if result.Success {
			ok++
			color.Green("✓ %s (%v)", label, result.Duration.Round(time.Millisecond))
			if out := strings.TrimSpace(result.Output); out != "" {
				fmt.Println(indent(out))
			}
		} else {
			color.Red("✗ %s: %s", label, result.Error)
		}
	}
	fmt.Printf("\n%d/%d tasks succeeded\n", ok, len(results))
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

func init() {
	swarmCmd.Flags().BoolVar(&swarmPrompts, "prompts", false, "Treat arguments as model prompts")
	swarmCmd.Flags().BoolVar(&swarmWatch, "watch", false, "Show a live dashboard while tasks run")
	swarmCmd.Flags().BoolVar(&swarmSandbox, "sandbox", false, "Run command tasks inside the container sandbox")
	swarmCmd.Flags().IntVar(&swarmConcurrency, "concurrency", 0, "Override the concurrency limit")
	swarmCmd.Flags().StringVar(&swarmModel, "model", "", "Model for prompt tasks")
}
