package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/security"
	"github.com/clawmate/clawmate/pkg/models"
)

var (
	execCwd      string
	execTimeout  time.Duration
	execPTY      bool
	execSandbox  bool
	execElevated bool
	execYes      bool
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run a shell command with streamed output",
	Long: `Execute a command through the assistant's execution pipeline.

The command is vetted against the security policy first; risky commands
prompt for confirmation unless --yes is given. Output streams line by
line, with stderr in red.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("wire backend: %w", err)
	}

	req := models.ExecutionRequest{
		Command:  args[0],
		Args:     args[1:],
		Cwd:      execCwd,
		Timeout:  execTimeout,
		PTY:      execPTY,
		Elevated: execElevated,
		Sandbox:  execSandbox,
	}

	verdict := b.policy.Vet(req.CommandLine(), execElevated)
	switch verdict.Decision {
	case security.DecisionDenied:
		return fmt.Errorf("command denied: %s", verdict.Reason)
	case security.DecisionNeedsApproval:
		if !execYes && !confirm(req.CommandLine(), verdict.Reason) {
			return fmt.Errorf("command not approved")
		}
	}

	if execSandbox && b.sandbox != nil {
		result := b.sandbox.Run(cmd.Context(), req)
		fmt.Print(result.Stdout)
		if result.Stderr != "" {
			color.Red("%s", result.Stderr)
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("exit code %d", result.ExitCode)
		}
		return nil
	}

	errored := false
	for chunk := range b.executor.Stream(cmd.Context(), req) {
		switch chunk.Origin {
		case models.OriginStdout:
			fmt.Print(chunk.Text)
		case models.OriginStderr:
			color.Red("%s", strings.TrimSuffix(chunk.Text, "\n"))
		case models.OriginError:
			color.Red("%s", strings.TrimSuffix(chunk.Text, "\n"))
			errored = true
		}
	}
	if errored {
		return fmt.Errorf("command did not complete")
	}
	return nil
}

// confirm asks the user to approve a vetted command on stdin.
func confirm(commandLine, reason string) bool {
	color.Yellow("approval required (%s):", reason)
	fmt.Printf("  %s\n", commandLine)
	fmt.Print("run it? [y/N] ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func init() {
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "Working directory")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Execution timeout (default from config)")
	execCmd.Flags().BoolVar(&execPTY, "pty", false, "Run under a terminal-allocating wrapper")
	execCmd.Flags().BoolVar(&execSandbox, "sandbox", false, "Run inside the container sandbox")
	execCmd.Flags().BoolVar(&execElevated, "elevated", false, "Request elevated privileges")
	execCmd.Flags().BoolVarP(&execYes, "yes", "y", false, "Skip the approval prompt")
}
