package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

type serialItem struct {
	work   Runnable
	traits TaskTraits
}

// SerialExecutor executes work one at a time in submission order on top of
// another Executor. The serialization is global to the SerialExecutor instance,
// regardless of how many workers the target has.
//
// Each unit schedules its successor when it finishes, whether it returned,
// panicked or ran with a cancelled context, so a failing unit never stalls the chain.
type SerialExecutor struct {
	name     string
	target   Executor
	handlers HandlerConfig

	mu        sync.Mutex
	tasks     *FIFOQueue[serialItem]
	hasActive bool
	closed    atomic.Bool

	activeRunners atomic.Int32 // guard for the one-at-a-time assertion
	completed     atomic.Int64
	rejected      atomic.Int64
}

var _ Executor = (*SerialExecutor)(nil)

// NewSerialExecutor creates a SerialExecutor that hands units to target.
// Panics if target is nil.
func NewSerialExecutor(name string, target Executor, handlers *HandlerConfig) *SerialExecutor {
	if target == nil {
		panic("SerialExecutor: target executor must not be nil")
	}
	if name == "" {
		name = "serial"
	}
	return &SerialExecutor{
		name:     name,
		target:   target,
		handlers: handlers.withDefaults(),
		tasks:    NewFIFOQueue[serialItem](),
	}
}

// Name returns the name of the executor
func (s *SerialExecutor) Name() string {
	return s.name
}

// Execute submits work with default traits.
func (s *SerialExecutor) Execute(work Runnable) error {
	return s.ExecuteWithTraits(work, DefaultTaskTraits())
}

// ExecuteWithTraits appends work to the serial chain. The traits are passed to
// the target when the unit's turn comes.
func (s *SerialExecutor) ExecuteWithTraits(work Runnable, traits TaskTraits) error {
	if work == nil {
		return fmt.Errorf("serial executor %s: nil work", s.name)
	}
	if s.closed.Load() {
		s.reject("closed")
		return ErrExecutorShutdown
	}

	item := serialItem{work: work, traits: traits}

	s.mu.Lock()
	if s.hasActive {
		s.tasks.Push(item)
		depth := s.tasks.Len()
		s.mu.Unlock()
		s.handlers.Metrics.RecordQueueDepth(s.name, depth)
		return nil
	}
	// Idle chain: the queue is empty, so this unit goes straight to the target.
	s.hasActive = true
	s.mu.Unlock()

	if err := s.target.ExecuteWithTraits(s.wrap(item), item.traits); err != nil {
		// This unit never ran; units queued behind it in the meantime were accepted.
		s.flush(nil, err)
		s.reject(err.Error())
		return err
	}
	return nil
}

// wrap runs the unit and chains the next admission to its completion.
func (s *SerialExecutor) wrap(item serialItem) Runnable {
	return func(ctx context.Context) {
		defer s.scheduleNext()

		if n := s.activeRunners.Add(1); n > 1 {
			panic(fmt.Sprintf("SerialExecutor %s: concurrent units detected (count=%d)", s.name, n))
		}
		defer s.activeRunners.Add(-1)

		item.work(ctx)
		s.completed.Add(1)
	}
}

func (s *SerialExecutor) scheduleNext() {
	s.mu.Lock()
	item, ok := s.tasks.Pop()
	if !ok {
		s.hasActive = false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// hasActive stays set, so no other unit can overtake item before it is handed over.
	if err := s.target.ExecuteWithTraits(s.wrap(item), item.traits); err != nil {
		s.flush([]serialItem{item}, err)
	}
}

// flush closes the chain after the target refused work. Every unit still queued
// was already accepted, so each runs here with a cancelled context.
func (s *SerialExecutor) flush(pending []serialItem, cause error) {
	s.mu.Lock()
	s.closed.Store(true)
	s.hasActive = false
	for {
		next, ok := s.tasks.Pop()
		if !ok {
			break
		}
		pending = append(pending, next)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	s.handlers.Logger.Warn("serial target rejected work, flushing chain",
		F("executor", s.name), F("pending", len(pending)), F("error", cause))
	ctx := cancelledContext(cause)
	for _, p := range pending {
		s.runDetached(ctx, p)
	}
}

func (s *SerialExecutor) runDetached(ctx context.Context, item serialItem) {
	defer func() {
		if r := recover(); r != nil {
			s.handlers.PanicHandler.HandlePanic(ctx, s.name, -1, r, debug.Stack())
			s.handlers.Metrics.RecordTaskPanic(s.name, r)
		}
	}()
	item.work(ctx)
	s.completed.Add(1)
}

func (s *SerialExecutor) reject(reason string) {
	s.rejected.Add(1)
	s.handlers.RejectedTaskHandler.HandleRejectedTask(s.name, reason)
	s.handlers.Metrics.RecordTaskRejected(s.name, reason)
}

// Close stops accepting new units. Units already queued still run.
func (s *SerialExecutor) Close() {
	s.closed.Store(true)
}

// IsClosed returns true if the executor no longer accepts units.
func (s *SerialExecutor) IsClosed() bool {
	return s.closed.Load()
}

// PendingCount returns the number of units waiting behind the active one.
func (s *SerialExecutor) PendingCount() int {
	return s.tasks.Len()
}

// Stats returns a snapshot of the chain state.
func (s *SerialExecutor) Stats() SerialStats {
	s.mu.Lock()
	active := s.hasActive
	s.mu.Unlock()

	return SerialStats{
		Name:      s.name,
		Pending:   s.tasks.Len(),
		Active:    active,
		Completed: s.completed.Load(),
		Rejected:  s.rejected.Load(),
	}
}
