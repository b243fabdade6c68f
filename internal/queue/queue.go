// Package queue implements the playback worker: a single-consumer FIFO that
// serializes speech requests for engines whose native call must not be
// invoked concurrently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// Worker consumes SpeechTasks one at a time on a dedicated goroutine.
//
// Before each dispatch the worker acquires the shared exclusion token. The
// token is released by whoever observes the end of speech (normally the
// callback bridge), or by the worker itself when a dispatch fails. Each
// submitted task stays unfinished until TaskDone is called for it.
type Worker struct {
	name  string
	token *engine.Token

	mu         sync.Mutex
	notEmpty   *sync.Cond
	pending    []engine.SpeechTask
	unfinished int
	idle       chan struct{}
	stopping   bool

	// gen is cancelled by Cancel so a dispatch blocked on the token gives up.
	gen       context.Context
	genCancel context.CancelFunc

	stopOnce sync.Once
	exited   chan struct{}

	stats Stats
}

// Stats tracks worker activity.
type Stats struct {
	TotalSubmitted  int64
	TotalDispatched int64
	TotalFailed     int64
	TotalCancelled  int64
	CurrentSize     int
	PeakSize        int
	LastSubmit      time.Time
	LastDispatch    time.Time
}

// NewWorker creates a worker and starts its loop. token is shared with every
// other engine driving the same output hardware.
func NewWorker(name string, token *engine.Token) *Worker {
	w := &Worker{
		name:   name,
		token:  token,
		idle:   closedChan(),
		exited: make(chan struct{}),
	}
	w.notEmpty = sync.NewCond(&w.mu)
	w.gen, w.genCancel = context.WithCancel(context.Background())

	go w.loop()

	return w
}

// Submit appends a task. It never blocks and never drops a task while the
// worker is running. A task with a nil target stops the loop; prefer Stop.
func (w *Worker) Submit(task engine.SpeechTask) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopping {
		log.Warn("Task submitted to stopped worker", "worker", w.name, "mode", task.Mode)
		return
	}

	if task.IsSentinel() {
		w.stopping = true
	} else {
		if w.unfinished == 0 {
			w.idle = make(chan struct{})
		}
		w.unfinished++
		w.stats.TotalSubmitted++
		w.stats.LastSubmit = time.Now()
	}

	w.pending = append(w.pending, task)
	w.stats.CurrentSize = len(w.pending)
	if w.stats.CurrentSize > w.stats.PeakSize {
		w.stats.PeakSize = w.stats.CurrentSize
	}

	w.notEmpty.Signal()
}

// TaskDone marks one dispatched task as finished. Extra calls are ignored.
func (w *Worker) TaskDone() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finishLocked(1)
}

func (w *Worker) finishLocked(n int) {
	if w.unfinished == 0 {
		return
	}
	w.unfinished -= n
	if w.unfinished <= 0 {
		w.unfinished = 0
		close(w.idle)
	}
}

// Wait blocks until every submitted task has been marked done or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel discards every pending task without running it and aborts a dispatch
// that is still waiting for the exclusion token. It returns the number of
// tasks discarded. It does not touch a task the engine already accepted.
func (w *Worker) Cancel() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	dropped := 0
	kept := w.pending[:0]
	for _, task := range w.pending {
		if task.IsSentinel() {
			kept = append(kept, task)
			continue
		}
		dropped++
	}
	w.pending = kept
	w.stats.CurrentSize = len(w.pending)
	w.stats.TotalCancelled += int64(dropped)
	w.finishLocked(dropped)

	w.genCancel()
	w.gen, w.genCancel = context.WithCancel(context.Background())

	if dropped > 0 {
		log.Debug("Cancelled pending tasks", "worker", w.name, "count", dropped)
	}
	return dropped
}

// Stop pushes the sentinel and waits for the loop to exit. Tasks submitted
// before Stop are still dispatched. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.Submit(engine.SpeechTask{})
	})
	<-w.exited
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// Size returns the number of tasks waiting for dispatch.
func (w *Worker) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Unfinished returns the number of submitted tasks not yet marked done.
func (w *Worker) Unfinished() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unfinished
}

// GetStats returns a copy of the current statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) next() (engine.SpeechTask, context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.pending) == 0 {
		w.notEmpty.Wait()
	}

	task := w.pending[0]
	w.pending[0] = engine.SpeechTask{}
	w.pending = w.pending[1:]
	w.stats.CurrentSize = len(w.pending)
	return task, w.gen
}

func (w *Worker) loop() {
	defer close(w.exited)

	for {
		task, ctx := w.next()
		if task.IsSentinel() {
			log.Debug("Playback worker stopped", "worker", w.name)
			return
		}
		w.dispatch(ctx, task)
	}
}

func (w *Worker) dispatch(ctx context.Context, task engine.SpeechTask) {
	var hold engine.Ticket
	defer func() {
		if r := recover(); r != nil {
			w.fail(task, fmt.Errorf("panic: %v", r), hold)
		}
	}()

	hold, err := w.token.Acquire(ctx)
	if err == nil && ctx.Err() != nil {
		// Cancelled while the token was being handed over.
		w.token.Release(hold)
		hold, err = 0, ctx.Err()
	}
	if err != nil {
		log.Debug("Dispatch abandoned", "worker", w.name, "voice", task.Target.Name(), "err", err)
		w.TaskDone()
		return
	}

	task.Target.Activate()

	switch task.Mode {
	case engine.ModeSpeakIndex:
		err = task.Target.Dispatch(hold, engine.ModeSpeakIndex, "", task.Index)
	default:
		err = task.Target.Dispatch(hold, engine.ModeSpeak, task.Text, task.Index)
	}
	if err != nil {
		w.fail(task, err, hold)
		return
	}

	w.mu.Lock()
	w.stats.TotalDispatched++
	w.stats.LastDispatch = time.Now()
	w.mu.Unlock()
}

// fail isolates one bad task: it is logged, its token hold is dropped and it
// is marked done so the loop moves on. A dispatch aborted by Stop is not a
// failure and is only counted as cancelled.
func (w *Worker) fail(task engine.SpeechTask, cause error, hold engine.Ticket) {
	aborted := errors.Is(cause, context.Canceled)
	if aborted {
		log.Debug("Dispatch cancelled", "worker", w.name, "voice", task.Target.Name(), "mode", task.Mode)
	} else {
		err := engine.NewError(engine.KindWorkerTaskFailure, "dispatch failed", cause).
			WithContext("voice", task.Target.Name()).
			WithContext("mode", task.Mode.String())
		log.Error("Error running task from queue", "worker", w.name, "err", err)
	}

	if hold != 0 {
		w.token.Release(hold)
	}

	w.mu.Lock()
	if aborted {
		w.stats.TotalCancelled++
	} else {
		w.stats.TotalFailed++
	}
	w.finishLocked(1)
	w.mu.Unlock()
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
