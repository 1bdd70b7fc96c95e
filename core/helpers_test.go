package core_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	core "github.com/Swind/go-rapid-task/core"
)

// quietHandlers returns handlers that discard logs, for tests.
func quietHandlers() *core.HandlerConfig {
	logger := core.NewNoOpLogger()
	return &core.HandlerConfig{
		Logger:              logger,
		PanicHandler:        &core.DefaultPanicHandler{Logger: logger},
		RejectedTaskHandler: &core.DefaultRejectedTaskHandler{Logger: logger},
	}
}

// newTestRuntime starts a runtime with quiet handlers and shuts it down on cleanup.
func newTestRuntime(t *testing.T, mutate func(cfg *core.RuntimeConfig)) *core.Runtime {
	t.Helper()
	cfg := core.DefaultRuntimeConfig()
	cfg.Handlers = quietHandlers()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := core.NewRuntime(cfg)
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	rt.Start()
	t.Cleanup(rt.Shutdown)
	return rt
}

// waitIdle blocks until every message posted so far has been dispatched.
func waitIdle(t *testing.T, rt *core.Runtime) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Queue().WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// recordingDialog records every call it receives, in order.
type recordingDialog struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDialog) record(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDialog) SetTitle(title string)     { d.record("title:" + title) }
func (d *recordingDialog) SetMessage(message string) { d.record("message:" + message) }
func (d *recordingDialog) SetProgress(progress int)  { d.record(fmt.Sprintf("progress:%d", progress)) }
func (d *recordingDialog) SetMax(max int)            { d.record(fmt.Sprintf("max:%d", max)) }
func (d *recordingDialog) SetIndeterminate(ind bool) { d.record(fmt.Sprintf("indeterminate:%t", ind)) }
func (d *recordingDialog) Show()                     { d.record("show") }
func (d *recordingDialog) Dismiss()                  { d.record("dismiss") }

func (d *recordingDialog) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *recordingDialog) Count(event string) int {
	n := 0
	for _, e := range d.Events() {
		if e == event {
			n++
		}
	}
	return n
}

// eventLog is a goroutine-safe ordered list of strings.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) Add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// blockingExecutor accepts work and holds it until RunNext is called.
type blockingExecutor struct {
	mu    sync.Mutex
	items []core.Runnable
}

func (e *blockingExecutor) Execute(work core.Runnable) error {
	return e.ExecuteWithTraits(work, core.DefaultTaskTraits())
}

func (e *blockingExecutor) ExecuteWithTraits(work core.Runnable, traits core.TaskTraits) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, work)
	return nil
}

func (e *blockingExecutor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// RunNext runs the oldest held unit on the calling goroutine.
func (e *blockingExecutor) RunNext(ctx context.Context) bool {
	e.mu.Lock()
	if len(e.items) == 0 {
		e.mu.Unlock()
		return false
	}
	work := e.items[0]
	e.items = e.items[1:]
	e.mu.Unlock()

	work(ctx)
	return true
}

// rejectingExecutor refuses every unit.
type rejectingExecutor struct{}

func (rejectingExecutor) Execute(work core.Runnable) error { return core.ErrExecutorShutdown }
func (rejectingExecutor) ExecuteWithTraits(work core.Runnable, traits core.TaskTraits) error {
	return core.ErrExecutorShutdown
}
