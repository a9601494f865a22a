// Package orchestrator coordinates concurrent agent tasks: shell
// commands run through the executor or sandbox, and chat prompts sent
// to a model backend. A weighted semaphore bounds how many task bodies
// run at once; every task converges to exactly one terminal result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/clawmate/clawmate/internal/llm"
	"github.com/clawmate/clawmate/pkg/models"
)

// Common errors for orchestrator operations.
var (
	// ErrTaskNotFound indicates an operation referenced a task id that
	// was never submitted. This is a contract violation, not a task
	// failure, so it surfaces as an error instead of a TaskResult.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask indicates a task id was submitted twice.
	ErrDuplicateTask = errors.New("task already submitted")
	// ErrShuttingDown indicates a submission arrived after Shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// CommandExecutor runs a request as a host process.
type CommandExecutor interface {
	Execute(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult
}

// SandboxRunner runs a request inside the container backend.
type SandboxRunner interface {
	Run(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult
}

// Status is a point-in-time snapshot of orchestrator activity.
// Active + CompletedOK + CompletedFailed always equals Total.
type Status struct {
	// Active counts handles that have not reached a terminal state.
	Active int `json:"active"`
	// CompletedOK counts tasks that finished successfully.
	CompletedOK int `json:"completed_ok"`
	// CompletedFailed counts tasks that failed or were cancelled.
	CompletedFailed int `json:"completed_failed"`
	// Total counts every handle registered since startup.
	Total int `json:"total"`
}

// handle tracks one submitted task through its lifecycle.
type handle struct {
	task   models.Task
	state  models.AgentState
	cancel context.CancelFunc
	// done closes when the handle reaches a terminal state.
	done chan struct{}
}

// Config contains configuration options for the Orchestrator.
type Config struct {
	// Capacity bounds how many task bodies run concurrently.
	// Zero means 4.
	Capacity int
	// DefaultTimeout is applied to tasks without their own timeout.
	// Zero means 10 minutes.
	DefaultTimeout time.Duration
	// DefaultModel is used for chat tasks without a model override.
	DefaultModel string
	// SandboxEnabled routes sandbox-flagged tasks to the Sandbox runner.
	// When false the flag is ignored and tasks run on the host.
	SandboxEnabled bool

	// Executor runs shell tasks on the host. Required.
	Executor CommandExecutor
	// Sandbox runs sandbox-flagged shell tasks. Optional.
	Sandbox SandboxRunner
	// LLM serves chat tasks. Optional; chat tasks fail without it.
	LLM llm.Client
}

// Orchestrator schedules and tracks agent tasks.
type Orchestrator struct {
	cfg Config
	sem *semaphore.Weighted

	mu       sync.RWMutex
	handles  map[string]*handle
	results  *ResultStore
	shutdown bool

	// ctx covers the orchestrator lifetime; cancelAll fires on Shutdown.
	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("Executor is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 4
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.Capacity)),
		handles:   make(map[string]*handle),
		results:   NewResultStore(),
		ctx:       ctx,
		cancelAll: cancel,
	}, nil
}

// Results exposes the in-memory result store.
func (o *Orchestrator) Results() *ResultStore {
	return o.results
}

// Capacity returns the configured concurrency bound.
func (o *Orchestrator) Capacity() int {
	return o.cfg.Capacity
}

// Submit registers a task and returns its id immediately. The task body
// is dispatched once a concurrency slot frees up. An empty task id is
// assigned a fresh UUID.
func (o *Orchestrator) Submit(task models.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	if _, exists := o.handles[task.ID]; exists {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	taskCtx, cancel := context.WithCancel(o.ctx)
	h := &handle{
		task:   task,
		state:  models.AgentIdle,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.handles[task.ID] = h
	// Add inside the lock: Shutdown holds the same lock before Wait,
	// so a registered handle is always counted.
	o.wg.Add(1)
	o.mu.Unlock()

	go o.runTask(taskCtx, h)

	log.Printf("[orchestrator] submitted task %s", task.ID)
	return task.ID, nil
}

// State returns the current lifecycle state of a handle.
func (o *Orchestrator) State(taskID string) (models.AgentState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.handles[taskID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return h.state, nil
}

// Cancel requests cancellation of a task without blocking. The handle
// converges to cancelled at the task body's next suspension point.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.RLock()
	h, ok := o.handles[taskID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	h.cancel()
	return nil
}

// Await blocks until the task reaches a terminal state and returns its
// result. An id that was never submitted returns ErrTaskNotFound.
func (o *Orchestrator) Await(ctx context.Context, taskID string) (models.TaskResult, error) {
	o.mu.RLock()
	h, ok := o.handles[taskID]
	o.mu.RUnlock()
	if !ok {
		return models.TaskResult{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		return models.TaskResult{}, ctx.Err()
	}

	result, ok := o.results.Get(taskID)
	if !ok {
		return models.TaskResult{}, fmt.Errorf("no result recorded for task %s", taskID)
	}
	return result, nil
}

// RunSwarm submits every task, then awaits each in submission order.
// Results come back in that same order regardless of completion order;
// one task's failure never affects its siblings.
func (o *Orchestrator) RunSwarm(ctx context.Context, tasks []models.Task) ([]models.TaskResult, error) {
	log.Printf("[orchestrator] starting swarm with %d tasks", len(tasks))

	ids := make([]string, len(tasks))
	submitErrs := make([]error, len(tasks))
	for i, task := range tasks {
		ids[i], submitErrs[i] = o.Submit(task)
	}

	results := make([]models.TaskResult, 0, len(tasks))
	for i := range tasks {
		if submitErrs[i] != nil {
			results = append(results, models.TaskResult{
				TaskID:  tasks[i].ID,
				Success: false,
				Error:   submitErrs[i].Error(),
			})
			continue
		}
		result, err := o.Await(ctx, ids[i])
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	log.Printf("[orchestrator] swarm completed with %d results", len(results))
	return results, nil
}

// Status returns a consistent snapshot of orchestrator activity. The
// lock it shares with lifecycle transitions guarantees no handle is ever
// observed mid-transition.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var s Status
	s.Total = len(o.handles)
	for id, h := range o.handles {
		if !h.state.Terminal() {
			s.Active++
			continue
		}
		if r, ok := o.results.Get(id); ok && r.Success {
			s.CompletedOK++
		} else {
			s.CompletedFailed++
		}
	}
	return s
}

// Shutdown cancels every outstanding task, waits until each has actually
// converged to a terminal state, then clears the handle and result
// registries. A second call after the first completes is a no-op.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil
	}
	o.shutdown = true
	o.mu.Unlock()

	log.Printf("[orchestrator] shutting down")
	o.cancelAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}

	o.mu.Lock()
	o.handles = make(map[string]*handle)
	o.mu.Unlock()
	o.results.Clear()

	log.Printf("[orchestrator] shutdown complete")
	return nil
}

// runTask drives one handle from idle to a terminal state.
func (o *Orchestrator) runTask(ctx context.Context, h *handle) {
	defer o.wg.Done()

	// Wait for a concurrency slot. A cancellation while queued skips
	// the body entirely.
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finalize(h, models.TaskResult{
			TaskID:  h.task.ID,
			Success: false,
			Error:   "cancelled before dispatch",
		}, models.AgentCancelled)
		return
	}
	defer o.sem.Release(1)

	if !o.transition(h, models.AgentRunning) {
		o.finalize(h, models.TaskResult{
			TaskID:  h.task.ID,
			Success: false,
			Error:   "task cancelled",
		}, models.AgentCancelled)
		return
	}

	start := time.Now()
	result, state := o.runBody(ctx, h.task)
	result.Duration = time.Since(start)
	o.finalize(h, result, state)
}

// runBody executes the task payload and classifies the outcome.
func (o *Orchestrator) runBody(ctx context.Context, task models.Task) (models.TaskResult, models.AgentState) {
	result := models.TaskResult{TaskID: task.ID}

	if task.IsCommand() {
		req := models.ExecutionRequest{
			Command:  task.Command,
			Args:     task.Args,
			Timeout:  o.taskTimeout(task),
			Elevated: task.Elevated,
			Sandbox:  task.Sandbox,
		}

		var exec models.ExecutionResult
		if task.Sandbox && o.cfg.SandboxEnabled && o.cfg.Sandbox != nil {
			exec = o.cfg.Sandbox.Run(ctx, req)
		} else {
			exec = o.cfg.Executor.Execute(ctx, req)
		}

		if ctx.Err() != nil {
			// Partial output from a cancelled task is discarded.
			result.Error = "task cancelled"
			return result, models.AgentCancelled
		}
		if exec.ExitCode != 0 {
			result.Output = exec.Stdout
			result.Error = failureMessage(exec)
			return result, models.AgentFailed
		}
		result.Success = true
		result.Output = exec.Stdout
		return result, models.AgentCompleted
	}

	model := task.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	output, err := llm.Prompt(ctx, o.cfg.LLM, task.Prompt, model)
	if ctx.Err() != nil {
		result.Error = "task cancelled"
		return result, models.AgentCancelled
	}
	if err != nil {
		result.Error = fmt.Sprintf("upstream error: %v", err)
		return result, models.AgentFailed
	}
	result.Success = true
	result.Output = output
	return result, models.AgentCompleted
}

// taskTimeout resolves the effective timeout for a task.
func (o *Orchestrator) taskTimeout(task models.Task) time.Duration {
	if task.Timeout > 0 {
		return task.Timeout
	}
	return o.cfg.DefaultTimeout
}

// transition moves a handle to the target state under the lock.
// Returns false when the handle is already terminal.
func (o *Orchestrator) transition(h *handle, to models.AgentState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !models.CanTransition(h.state, to) {
		return false
	}
	h.state = to
	return true
}

// finalize records the terminal result and state for a handle. The
// result write and the state transition happen under the same lock, so
// Status never observes a handle mid-transition.
func (o *Orchestrator) finalize(h *handle, result models.TaskResult, state models.AgentState) {
	o.mu.Lock()
	if h.state.Terminal() {
		o.mu.Unlock()
		return
	}
	h.state = state
	o.results.Put(result)
	o.mu.Unlock()

	h.cancel()
	close(h.done)

	if result.Success {
		log.Printf("[orchestrator] task %s completed in %v", result.TaskID, result.Duration)
	} else {
		log.Printf("[orchestrator] task %s %s: %s", result.TaskID, state, result.Error)
	}
}

// failureMessage summarizes a failed execution for the task result.
func failureMessage(exec models.ExecutionResult) string {
	if exec.Stderr != "" {
		return exec.Stderr
	}
	return fmt.Sprintf("exit code %d", exec.ExitCode)
}
