package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/clawmate/clawmate/pkg/models"
)

// streamBufSize is the per-process chunk channel capacity. A bounded
// buffer gives the reader goroutines slack without letting a slow
// consumer accumulate unbounded output in memory.
const streamBufSize = 100

// pollInterval is how often the cancellation watcher wakes between
// checks while the pipes are quiet.
const pollInterval = 50 * time.Millisecond

// Stream runs the request and returns a channel of per-line output
// chunks. Each chunk carries a completed line from exactly one of the
// two pipes; chunks are never merged across streams. The channel closes
// only after both pipes have hit EOF and the exit status has been
// collected. If streaming cannot proceed, the final chunk before close
// has Origin == models.OriginError.
func (e *Executor) Stream(ctx context.Context, req models.ExecutionRequest) <-chan models.OutputChunk {
	out := make(chan models.OutputChunk, streamBufSize)

	argv := e.builder.Build(req)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Cwd
	cmd.Env = mergeEnv(req.Env)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failStream(out, fmt.Sprintf("create stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return failStream(out, fmt.Sprintf("create stderr pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return failStream(out, fmt.Sprintf("spawn failed: %v", err))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var readErr error

	setErr := func(err error) {
		mu.Lock()
		if readErr == nil {
			readErr = err
		}
		mu.Unlock()
	}

	// Closed once the process has been killed. Scanner sends select
	// against it so a consumer that cancelled and walked away cannot
	// wedge a reader goroutine on a full channel.
	stop := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := scanLines(stdout, models.OriginStdout, out, stop); err != nil {
			setErr(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := scanLines(stderr, models.OriginStderr, out, stop); err != nil {
			setErr(err)
		}
	}()

	// Cancellation watcher: wakes periodically so a context cancel kills
	// the process promptly instead of waiting for the pipes to drain.
	watchDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchDone:
				return
			case <-ctx.Done():
				killProcessTree(cmd)
				close(stop)
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		defer close(out)
		// Both pipes must be drained before Wait reaps the process.
		wg.Wait()
		close(watchDone)

		waitErr := cmd.Wait()

		mu.Lock()
		err := readErr
		mu.Unlock()

		switch {
		case ctx.Err() != nil:
			// The consumer that cancelled may no longer be reading.
			select {
			case out <- models.OutputChunk{
				Origin: models.OriginError,
				Text:   fmt.Sprintf("stream cancelled: %v", ctx.Err()),
			}:
			default:
			}
		case err != nil:
			out <- models.OutputChunk{
				Origin: models.OriginError,
				Text:   fmt.Sprintf("stream read error: %v", err),
			}
		case waitErr != nil && cmd.ProcessState == nil:
			out <- models.OutputChunk{
				Origin: models.OriginError,
				Text:   fmt.Sprintf("wait failed: %v", waitErr),
			}
		}
	}()

	return out
}

// scanLines reads completed lines from r and forwards each as a chunk.
// Blocking reads mean the goroutine idles while the pipe is quiet; it
// never spins. Sends abort when stop closes so a stalled consumer
// cannot pin the goroutine after the process is gone.
func scanLines(r io.Reader, origin models.StreamOrigin, out chan<- models.OutputChunk, stop <-chan struct{}) error {
	scanner := bufio.NewScanner(r)
	// Allow long lines without choking the scanner.
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case out <- models.OutputChunk{
			Origin: origin,
			Text:   decode(scanner.Bytes()) + "\n",
		}:
		case <-stop:
			// Drain the remaining pipe contents so Wait can reap.
			for scanner.Scan() {
			}
			return scanner.Err()
		}
	}
	return scanner.Err()
}

// failStream emits a single error chunk and closes the channel.
func failStream(out chan models.OutputChunk, msg string) <-chan models.OutputChunk {
	out <- models.OutputChunk{Origin: models.OriginError, Text: msg}
	close(out)
	return out
}
