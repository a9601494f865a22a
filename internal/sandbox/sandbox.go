// Package sandbox executes commands inside a container runtime as an
// isolated alternative to direct host process spawning.
package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawmate/clawmate/pkg/models"
)

// DefaultImage is the base image used when none is configured.
const DefaultImage = "ubuntu:latest"

// DefaultTimeout bounds sandboxed runs whose request carries no timeout.
const DefaultTimeout = 5 * time.Minute

// dockerCLI abstracts the docker binary so tests can fake it.
type dockerCLI interface {
	// LookPath reports whether the docker binary is available.
	LookPath(file string) (string, error)
	// Run invokes docker with args and returns combined output and the
	// docker process exit code.
	Run(ctx context.Context, args ...string) (output string, exitCode int, err error)
}

// execDockerCLI shells out to the docker binary.
type execDockerCLI struct{}

func (execDockerCLI) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execDockerCLI) Run(ctx context.Context, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	return string(out), code, err
}

// Runner executes requests in throwaway containers. The same result shape
// as the native executor comes back, with one documented caveat: the
// container boundary decouples the caller's clock from the contained
// process, so sandboxed Duration values include image and runtime
// overhead and are not comparable to native executor durations.
type Runner struct {
	cli            dockerCLI
	image          string
	defaultTimeout time.Duration
}

// Config contains configuration options for the sandbox Runner.
type Config struct {
	// Image is the container base image. Empty means DefaultImage.
	Image string
	// DefaultTimeout is applied when a request has no timeout.
	// Zero means DefaultTimeout.
	DefaultTimeout time.Duration
}

// New creates a Runner with the given configuration.
func New(cfg Config) *Runner {
	image := cfg.Image
	if image == "" {
		image = DefaultImage
	}
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Runner{cli: execDockerCLI{}, image: image, defaultTimeout: timeout}
}

// Available reports whether the docker binary is present on this host.
func (r *Runner) Available() bool {
	_, err := r.cli.LookPath("docker")
	return err == nil
}

// Run executes the request in a fresh container and removes the container
// afterward regardless of outcome. It never returns an error: failures
// produce an ExecutionResult with exit code -1 and a message in Stderr.
func (r *Runner) Run(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult {
	start := time.Now()
	result := models.ExecutionResult{
		Command:  req.CommandLine(),
		ExitCode: -1,
	}

	if _, err := r.cli.LookPath("docker"); err != nil {
		result.Stderr = fmt.Sprintf("docker CLI not found: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := "clawmate-" + uuid.New().String()[:8]
	args := r.buildRunArgs(name, req)

	out, code, err := r.cli.Run(runCtx, args...)
	result.Duration = time.Since(start)
	result.Stdout = strings.ToValidUTF8(out, "�")

	// --rm handles the normal path; a kill or timeout can still leave the
	// container behind, so force-remove unconditionally.
	defer r.forceRemove(name)

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("sandboxed command timed out after %v", timeout)
	case ctx.Err() != nil:
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("sandboxed command cancelled: %v", ctx.Err())
	case err != nil && code == 0:
		result.Stdout = ""
		result.Stderr = fmt.Sprintf("container run failed: %v", err)
	default:
		result.ExitCode = code
	}
	return result
}

// buildRunArgs assembles the docker run invocation for a request.
func (r *Runner) buildRunArgs(name string, req models.ExecutionRequest) []string {
	args := []string{"run", "--rm", "--name", name}
	if req.Cwd != "" {
		args = append(args, "-w", req.Cwd)
	}
	// Sort env keys so the invocation is deterministic.
	keys := make([]string, 0, len(req.Env))
	for k := range req.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+req.Env[k])
	}
	args = append(args, r.image, "sh", "-c", req.CommandLine())
	return args
}

// forceRemove deletes the container if it is still around. Best effort.
func (r *Runner) forceRemove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _, _ = r.cli.Run(ctx, "rm", "-f", name)
}
