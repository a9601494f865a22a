package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clawmate/clawmate/internal/llm"
	"github.com/clawmate/clawmate/pkg/models"
)

// fakeExecutor simulates command execution with a configurable delay and
// tracks the number of concurrently running bodies.
type fakeExecutor struct {
	delay time.Duration
	fail  bool

	running int64
	peak    int64
}

func (f *fakeExecutor) Execute(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult {
	cur := atomic.AddInt64(&f.running, 1)
	for {
		old := atomic.LoadInt64(&f.peak)
		if cur <= old || atomic.CompareAndSwapInt64(&f.peak, old, cur) {
			break
		}
	}
	defer atomic.AddInt64(&f.running, -1)

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return models.ExecutionResult{Command: req.Command, ExitCode: -1, Stderr: "command cancelled"}
	}

	if f.fail {
		return models.ExecutionResult{Command: req.Command, ExitCode: 1, Stderr: "boom"}
	}
	return models.ExecutionResult{Command: req.Command, ExitCode: 0, Stdout: "ran " + req.Command}
}

// fakeLLM returns a canned reply or error.
type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, model string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []llm.Message, model string, fn llm.StreamFunc) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.reply)
}

func (f *fakeLLM) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

func (f *fakeLLM) Ping(ctx context.Context) error {
	return f.err
}

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Executor == nil {
		cfg.Executor = &fakeExecutor{}
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return o
}

func cmdTask(id, command string) models.Task {
	return models.Task{ID: id, Command: command}
}

func TestNewRequiresExecutor(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing executor")
	}
}

func TestSubmitAndAwait(t *testing.T) {
	o := newTestOrchestrator(t, Config{Capacity: 2})
	defer o.Shutdown(context.Background())

	id, err := o.Submit(cmdTask("t1", "echo"))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id != "t1" {
		t.Errorf("id = %q, want t1", id)
	}

	result, err := o.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, error = %q", result.Error)
	}
	if result.Output != "ran echo" {
		t.Errorf("Output = %q, want %q", result.Output, "ran echo")
	}
	if result.Duration <= 0 {
		t.Error("Duration not recorded")
	}

	state, err := o.State(id)
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if state != models.AgentCompleted {
		t.Errorf("state = %q, want completed", state)
	}
}

func TestSubmitAssignsID(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	defer o.Shutdown(context.Background())

	id, err := o.Submit(models.Task{Command: "echo"})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id == "" {
		t.Error("expected generated id")
	}
}

func TestSubmitDuplicateID(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	defer o.Shutdown(context.Background())

	if _, err := o.Submit(cmdTask("dup", "echo")); err != nil {
		t.Fatalf("first Submit() error: %v", err)
	}
	if _, err := o.Submit(cmdTask("dup", "echo")); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestAwaitUnknownTask(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	defer o.Shutdown(context.Background())

	_, err := o.Await(context.Background(), "ghost")
	if err == nil || !strings.Contains(err.Error(), "task not found") {
		t.Errorf("err = %v, want task not found", err)
	}
	if err := o.Cancel("ghost"); err == nil {
		t.Error("Cancel() on unknown id should error")
	}
	if _, err := o.State("ghost"); err == nil {
		t.Error("State() on unknown id should error")
	}
}

func TestFailedCommandResult(t *testing.T) {
	o := newTestOrchestrator(t, Config{Executor: &fakeExecutor{fail: true}})
	defer o.Shutdown(context.Background())

	id, _ := o.Submit(cmdTask("f1", "false"))
	result, err := o.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if result.Error != "boom" {
		t.Errorf("Error = %q, want boom", result.Error)
	}

	state, _ := o.State(id)
	if state != models.AgentFailed {
		t.Errorf("state = %q, want failed", state)
	}
}

func TestChatTask(t *testing.T) {
	o := newTestOrchestrator(t, Config{LLM: &fakeLLM{reply: "hello there"}})
	defer o.Shutdown(context.Background())

	id, _ := o.Submit(models.Task{ID: "c1", Prompt: "say hi"})
	result, err := o.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if !result.Success || result.Output != "hello there" {
		t.Errorf("result = %+v", result)
	}
}

func TestChatTaskUpstreamError(t *testing.T) {
	o := newTestOrchestrator(t, Config{LLM: &fakeLLM{err: fmt.Errorf("connection refused")}})
	defer o.Shutdown(context.Background())

	id, _ := o.Submit(models.Task{ID: "c2", Prompt: "say hi"})
	result, err := o.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if !strings.Contains(result.Error, "upstream error") {
		t.Errorf("Error = %q, want upstream error", result.Error)
	}
}

func TestChatTaskWithoutBackend(t *testing.T) {
	o := newTestOrchestrator(t, Config{})
	defer o.Shutdown(context.Background())

	id, _ := o.Submit(models.Task{ID: "c3", Prompt: "say hi"})
	result, err := o.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if result.Success {
		t.Error("expected failure without a model backend")
	}
}

func TestCapacityBound(t *testing.T) {
	exec := &fakeExecutor{delay: 50 * time.Millisecond}
	o := newTestOrchestrator(t, Config{Capacity: 3, Executor: exec})
	defer o.Shutdown(context.Background())

	var tasks []models.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, cmdTask(fmt.Sprintf("cap-%d", i), "echo"))
	}

	stop := make(chan struct{})
	var sampled int64
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				var running int
				for i := range tasks {
					if st, err := o.State(tasks[i].ID); err == nil && st == models.AgentRunning {
						running++
					}
				}
				if running > o.Capacity() {
					atomic.AddInt64(&sampled, 1)
				}
			}
		}
	}()

	if _, err := o.RunSwarm(context.Background(), tasks); err != nil {
		t.Fatalf("RunSwarm() error: %v", err)
	}
	close(stop)

	if n := atomic.LoadInt64(&sampled); n > 0 {
		t.Errorf("observed %d samples with more than %d running handles", n, o.Capacity())
	}
	if exec.peak > int64(o.Capacity()) {
		t.Errorf("executor peak concurrency = %d, want <= %d", exec.peak, o.Capacity())
	}
}

func TestRunSwarmPreservesOrder(t *testing.T) {
	// Stagger delays so later submissions finish first.
	exec := &staggerExecutor{delays: map[string]time.Duration{
		"echo a": 60 * time.Millisecond,
		"echo b": 10 * time.Millisecond,
		"echo c": 30 * time.Millisecond,
	}}
	o := newTestOrchestrator(t, Config{Capacity: 3, Executor: exec})
	defer o.Shutdown(context.Background())

	tasks := []models.Task{
		cmdTask("a", "echo a"),
		cmdTask("b", "echo b"),
		cmdTask("c", "echo c"),
	}
	results, err := o.RunSwarm(context.Background(), tasks)
	if err != nil {
		t.Fatalf("RunSwarm() error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].TaskID != want {
			t.Errorf("results[%d].TaskID = %q, want %q", i, results[i].TaskID, want)
		}
	}
}

// staggerExecutor delays per command line to force out-of-order completion.
type staggerExecutor struct {
	delays map[string]time.Duration
}

func (s *staggerExecutor) Execute(ctx context.Context, req models.ExecutionRequest) models.ExecutionResult {
	select {
	case <-time.After(s.delays[req.CommandLine()]):
	case <-ctx.Done():
		return models.ExecutionResult{ExitCode: -1, Stderr: "command cancelled"}
	}
	return models.ExecutionResult{Command: req.Command, ExitCode: 0, Stdout: req.CommandLine()}
}

func TestRunSwarmIsolatesFailures(t *testing.T) {
	exec := &staggerExecutor{delays: map[string]time.Duration{}}
	o := newTestOrchestrator(t, Config{Capacity: 2, Executor: exec, LLM: &fakeLLM{err: fmt.Errorf("down")}})
	defer o.Shutdown(context.Background())

	tasks := []models.Task{
		cmdTask("ok1", "echo"),
		{ID: "bad", Prompt: "hi"},
		cmdTask("ok2", "echo"),
	}
	results, err := o.RunSwarm(context.Background(), tasks)
	if err != nil {
		t.Fatalf("RunSwarm() error: %v", err)
	}
	if !results[0].Success || !results[2].Success {
		t.Error("sibling tasks should succeed despite a failed task")
	}
	if results[1].Success {
		t.Error("failed task should report failure")
	}
}

func TestShutdownCancelsRunning(t *testing.T) {
	exec := &fakeExecutor{delay: 10 * time.Second}
	o := newTestOrchestrator(t, Config{Capacity: 4, Executor: exec})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := o.Submit(cmdTask(fmt.Sprintf("s-%d", i), "sleep"))
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		ids = append(ids, id)
	}

	// Let the bodies start before pulling the plug.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := o.Status()
		if s.Active == 3 && atomic.LoadInt64(&exec.running) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tasks never started running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Every body has actually returned before Shutdown did.
	if n := atomic.LoadInt64(&exec.running); n != 0 {
		t.Errorf("%d executions still running after shutdown", n)
	}

	// Both registries cleared, later submissions refused, second call
	// a no-op.
	if o.Status().Total != 0 {
		t.Error("handles not cleared after shutdown")
	}
	if n := o.Results().Len(); n != 0 {
		t.Errorf("result registry holds %d entries after shutdown", n)
	}
	for _, id := range ids {
		if _, err := o.Await(context.Background(), id); !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("Await(%s) after shutdown error = %v, want ErrTaskNotFound", id, err)
		}
	}
	if _, err := o.Submit(cmdTask("late", "echo")); err == nil {
		t.Error("Submit() after shutdown should fail")
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}

// Shutdown must wait for every task an overlapping Submit managed to
// register, never returning while one of their bodies is still running.
func TestSubmitShutdownRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		exec := &fakeExecutor{delay: 20 * time.Millisecond}
		o := newTestOrchestrator(t, Config{Capacity: 8, Executor: exec})

		stop := make(chan struct{})
		var submitters sync.WaitGroup
		for g := 0; g < 4; g++ {
			submitters.Add(1)
			go func() {
				defer submitters.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					if _, err := o.Submit(cmdTask("", "work")); errors.Is(err, ErrShuttingDown) {
						return
					}
				}
			}()
		}

		time.Sleep(time.Millisecond)
		if err := o.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error: %v", err)
		}
		if n := atomic.LoadInt64(&exec.running); n != 0 {
			t.Fatalf("iteration %d: %d bodies still running after Shutdown returned", i, n)
		}
		close(stop)
		submitters.Wait()
	}
}

func TestCancelWhileQueued(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Second}
	o := newTestOrchestrator(t, Config{Capacity: 1, Executor: exec})
	defer o.Shutdown(context.Background())

	blocker, _ := o.Submit(cmdTask("blocker", "sleep"))
	queued, _ := o.Submit(cmdTask("queued", "sleep"))

	if err := o.Cancel(queued); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	result, err := o.Await(context.Background(), queued)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if result.Success {
		t.Error("cancelled task should not succeed")
	}
	st, _ := o.State(queued)
	if st != models.AgentCancelled {
		t.Errorf("state = %q, want cancelled", st)
	}

	_ = o.Cancel(blocker)
	if _, err := o.Await(context.Background(), blocker); err != nil {
		t.Fatalf("Await(blocker) error: %v", err)
	}
}

func TestStatusArithmetic(t *testing.T) {
	exec := &fakeExecutor{delay: 20 * time.Millisecond}
	o := newTestOrchestrator(t, Config{Capacity: 2, Executor: exec})
	defer o.Shutdown(context.Background())

	var ids []string
	for i := 0; i < 6; i++ {
		id, _ := o.Submit(cmdTask(fmt.Sprintf("st-%d", i), "echo"))
		ids = append(ids, id)
	}

	// The invariant holds at every sampled instant, not just at rest.
	for i := 0; i < 20; i++ {
		s := o.Status()
		if s.Active+s.CompletedOK+s.CompletedFailed != s.Total {
			t.Fatalf("status arithmetic broken: %+v", s)
		}
		time.Sleep(3 * time.Millisecond)
	}

	for _, id := range ids {
		if _, err := o.Await(context.Background(), id); err != nil {
			t.Fatalf("Await() error: %v", err)
		}
	}
	s := o.Status()
	if s.Active != 0 || s.CompletedOK != 6 || s.Total != 6 {
		t.Errorf("final status = %+v", s)
	}
}

func TestAwaitHonorsCallerContext(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Second}
	o := newTestOrchestrator(t, Config{Executor: exec})
	defer o.Shutdown(context.Background())

	id, _ := o.Submit(cmdTask("slow", "sleep"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := o.Await(ctx, id); err == nil {
		t.Error("expected context deadline error")
	}
}

func TestResultStoreWriteOnce(t *testing.T) {
	store := NewResultStore()
	store.Put(models.TaskResult{TaskID: "x", Success: true, Output: "first"})
	store.Put(models.TaskResult{TaskID: "x", Success: false, Output: "second"})

	got, ok := store.Get("x")
	if !ok {
		t.Fatal("result missing")
	}
	if got.Output != "first" || !got.Success {
		t.Errorf("later write overwrote result: %+v", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	store.Clear()
	if store.Len() != 0 {
		t.Error("Clear() did not empty the store")
	}
}

func TestResultStoreConcurrent(t *testing.T) {
	store := NewResultStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Put(models.TaskResult{TaskID: fmt.Sprintf("t-%d", n), Success: true})
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("Len() = %d, want 20", store.Len())
	}
}
