// Package subprocess runs synthesizer command-line tools with their input
// attached before start, a timeout and a bounded output size.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTimeout bounds a run when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// interruptGrace is how long a timed-out process gets to exit after SIGINT
// before it is killed.
const interruptGrace = 100 * time.Millisecond

var (
	// ErrNoOutput is returned when the process succeeds without writing anything.
	ErrNoOutput = errors.New("process produced no output")
	// ErrOutputTooLarge is returned when output exceeds Runner.MaxOutput.
	ErrOutputTooLarge = errors.New("process output too large")
)

// Runner executes one process at a time per call; it holds no shared state
// beyond its settings and is safe for concurrent use.
type Runner struct {
	Timeout   time.Duration
	MaxOutput int
}

// New creates a runner. Zero values select DefaultTimeout and no size cap.
func New(timeout time.Duration, maxOutput int) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Timeout: timeout, MaxOutput: maxOutput}
}

// Run starts name with stdin already attached, waits for it and returns its
// stdout. On timeout or cancellation the process is interrupted, then killed.
func (r *Runner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
		}
	case <-ctx.Done():
		cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(interruptGrace):
			cmd.Process.Kill()
			<-done
		}
		log.Debug("Subprocess aborted", "cmd", name, "err", ctx.Err())
		return nil, fmt.Errorf("%s aborted: %w", name, ctx.Err())
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w, stderr: %s", name, ErrNoOutput, bytes.TrimSpace(stderr.Bytes()))
	}
	if r.MaxOutput > 0 && len(out) > r.MaxOutput {
		return nil, fmt.Errorf("%s: %w: %d bytes", name, ErrOutputTooLarge, len(out))
	}
	return out, nil
}

// Available reports whether name resolves to an executable.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
