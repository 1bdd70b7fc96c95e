package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// MessageKind tags the messages carried by a DispatchQueue.
type MessageKind int

const (
	MessagePostResult MessageKind = iota + 1
	MessagePostException
	MessageRunOnAffinity
	MessageSetDialogField
	MessageApplyTransaction
)

func (k MessageKind) String() string {
	switch k {
	case MessagePostResult:
		return "result"
	case MessagePostException:
		return "exception"
	case MessageRunOnAffinity:
		return "runnable"
	case MessageSetDialogField:
		return "dialog_field"
	case MessageApplyTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a unit of work delivered on the affinity goroutine.
type Message interface {
	Kind() MessageKind
	// Dispatch runs on the affinity goroutine.
	Dispatch()
}

type runnableMessage struct {
	fn func()
}

func (m *runnableMessage) Kind() MessageKind { return MessageRunOnAffinity }
func (m *runnableMessage) Dispatch()         { m.fn() }

// DispatchQueue binds a dedicated goroutine (the affinity goroutine) to a FIFO
// mailbox. Any goroutine may post; messages are dispatched one at a time, in post
// order, and one message is fully handled before the next starts.
//
// Use cases:
// 1. Delivering AsyncTask results and progress to the goroutine that owns UI state
// 2. Serializing access to state that is not safe for concurrent use
//
// A message handler that panics is fatal to that message only: the panic is
// reported to the PanicHandler and the loop continues with the next message.
type DispatchQueue struct {
	name     string
	handlers HandlerConfig

	queue  *FIFOQueue[Message]
	signal chan struct{}

	started atomic.Bool
	// closeMu orders every accepted push before the close, so the loop's final
	// emptiness check sees it.
	closeMu      sync.Mutex
	closed       atomic.Bool
	stopped      chan struct{}
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	dispatched atomic.Int64
	panics     atomic.Int64
	rejected   atomic.Int64
}

// NewDispatchQueue creates a DispatchQueue. Call Start or Run to begin dispatching;
// messages posted before that are kept in order.
func NewDispatchQueue(name string, handlers *HandlerConfig) *DispatchQueue {
	if name == "" {
		name = "affinity"
	}
	return &DispatchQueue{
		name:         name,
		handlers:     handlers.withDefaults(),
		queue:        NewFIFOQueue[Message](),
		signal:       make(chan struct{}, 1),
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
	}
}

// Name returns the name of the queue
func (q *DispatchQueue) Name() string {
	return q.name
}

// Start spawns the dedicated affinity goroutine. Repeated calls are no-ops.
func (q *DispatchQueue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	go q.runLoop()
}

// Run turns the calling goroutine into the affinity goroutine, locked to its OS
// thread, and dispatches until ctx is done or Shutdown is called. This is the mode
// for toolkits that require the main OS thread. Returns an error if the queue was
// already started.
func (q *DispatchQueue) Run(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatch queue %s: already started", q.name)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	go func() {
		select {
		case <-ctx.Done():
			q.Shutdown()
		case <-q.stopped:
		}
	}()

	q.runLoop()
	return nil
}

// Post enqueues msg. It never blocks and returns false once the queue is shut down.
func (q *DispatchQueue) Post(msg Message) bool {
	if msg == nil {
		return false
	}
	q.closeMu.Lock()
	if q.closed.Load() {
		q.closeMu.Unlock()
		q.rejected.Add(1)
		reason := "shut down: dropped " + msg.Kind().String()
		q.handlers.RejectedTaskHandler.HandleRejectedTask(q.name, reason)
		q.handlers.Metrics.RecordTaskRejected(q.name, reason)
		return false
	}
	q.queue.Push(msg)
	q.closeMu.Unlock()

	q.handlers.Metrics.RecordQueueDepth(q.name, q.queue.Len())
	q.wake()
	return true
}

// PostFunc enqueues fn as a MessageRunOnAffinity message.
func (q *DispatchQueue) PostFunc(fn func()) bool {
	if fn == nil {
		return false
	}
	return q.Post(&runnableMessage{fn: fn})
}

func (q *DispatchQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
		// A wakeup is already pending
	}
}

// runLoop is the core of this queue, it occupies the affinity goroutine
func (q *DispatchQueue) runLoop() {
	defer close(q.stopped)

	for {
		for {
			msg, ok := q.queue.Pop()
			if !ok {
				break
			}
			q.dispatch(msg)
		}

		if q.closed.Load() && q.queue.IsEmpty() {
			return
		}
		<-q.signal
	}
}

func (q *DispatchQueue) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.handlers.PanicHandler.HandlePanic(context.Background(), q.name, -1, r, debug.Stack())
			q.handlers.Metrics.RecordTaskPanic(q.name, r)
		}
	}()
	q.dispatched.Add(1)
	msg.Dispatch()
}

// Shutdown stops accepting messages. Messages already queued are still
// dispatched, after which the loop exits. Safe to call from a message handler.
func (q *DispatchQueue) Shutdown() {
	q.shutdownOnce.Do(func() {
		q.closeMu.Lock()
		q.closed.Store(true)
		q.closeMu.Unlock()
		close(q.shutdownChan)
		q.wake()
	})
}

// Stop shuts the queue down and waits for the loop to drain and exit.
// Must not be called from the affinity goroutine.
func (q *DispatchQueue) Stop() {
	q.Shutdown()
	if q.started.Load() {
		<-q.stopped
	}
}

// IsClosed returns true once Shutdown has been called
func (q *DispatchQueue) IsClosed() bool {
	return q.closed.Load()
}

// WaitIdle blocks until every message posted before the call has been dispatched.
// It posts a barrier message and waits for it.
func (q *DispatchQueue) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	if !q.PostFunc(func() { close(done) }) {
		return fmt.Errorf("dispatch queue %s is closed", q.name)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitShutdown blocks until Shutdown() is called on this queue.
func (q *DispatchQueue) WaitShutdown(ctx context.Context) error {
	select {
	case <-q.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the queue state.
func (q *DispatchQueue) Stats() DispatchQueueStats {
	return DispatchQueueStats{
		Name:       q.name,
		Pending:    q.queue.Len(),
		Dispatched: q.dispatched.Load(),
		Panics:     q.panics.Load(),
		Rejected:   q.rejected.Load(),
		Closed:     q.closed.Load(),
	}
}
