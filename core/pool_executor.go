package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// PoolExecutor runs work on a bounded set of worker goroutines.
//
// Workers are started on demand: one per submission until CoreSize workers exist,
// then work is queued. When the backlog grows past QueueCapacity, extra workers are
// started up to MaxSize; those exit after KeepAlive without work. Submissions beyond
// that are still queued, so nothing accepted is ever dropped. There is no ordering
// guarantee between independently submitted work.
type PoolExecutor struct {
	id       string
	cfg      PoolConfig
	handlers HandlerConfig

	queue  WorkQueue
	signal chan struct{}

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	// mu guards worker accounting and the shutdown transition.
	mu           sync.Mutex
	workers      int
	peak         int
	nextWorkerID int
	shuttingDown atomic.Bool

	metricActive atomic.Int32
	metricIdle   atomic.Int32
	rejected     atomic.Int64
	inflight     atomic.Int64 // accepted and not yet finished

	history *executionHistory
}

var _ Executor = (*PoolExecutor)(nil)

// NewPoolExecutor creates a PoolExecutor. No goroutine is started until work arrives.
func NewPoolExecutor(id string, cfg PoolConfig, handlers *HandlerConfig) (*PoolExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = "pool"
	}

	var queue WorkQueue
	if cfg.UsePriority {
		queue = NewPriorityWorkQueue()
	} else {
		queue = NewFIFOQueue[WorkItem]()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &PoolExecutor{
		id:       id,
		cfg:      cfg,
		handlers: handlers.withDefaults(),
		queue:    queue,
		signal:   make(chan struct{}, cfg.MaxSize*2),
		ctx:      ctx,
		cancel:   cancel,
		history:  newExecutionHistory(cfg.HistoryCapacity),
	}, nil
}

// ID returns the ID of the pool
func (p *PoolExecutor) ID() string {
	return p.id
}

// Config returns the bounds the pool was created with.
func (p *PoolExecutor) Config() PoolConfig {
	return p.cfg
}

// Execute submits work with default traits.
func (p *PoolExecutor) Execute(work Runnable) error {
	return p.ExecuteWithTraits(work, DefaultTaskTraits())
}

// ExecuteWithTraits submits work. It returns ErrExecutorShutdown once Shutdown has begun.
func (p *PoolExecutor) ExecuteWithTraits(work Runnable, traits TaskTraits) error {
	if work == nil {
		return fmt.Errorf("pool %s: nil work", p.id)
	}
	item := WorkItem{Work: work, Traits: traits, EnqueuedAt: time.Now()}

	p.mu.Lock()
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		p.reject("shutting down")
		return ErrExecutorShutdown
	}
	p.inflight.Add(1)

	if p.workers < p.cfg.CoreSize {
		p.spawnWorkerLocked(&item, true)
		p.mu.Unlock()
		return nil
	}

	p.queue.Push(item)
	depth := p.queue.Len()
	if depth > p.cfg.QueueCapacity && p.workers < p.cfg.MaxSize {
		p.spawnWorkerLocked(nil, false)
	}
	p.mu.Unlock()

	p.handlers.Metrics.RecordQueueDepth(p.id, depth)

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full, but the work is already queued
	}
	return nil
}

func (p *PoolExecutor) reject(reason string) {
	p.rejected.Add(1)
	p.handlers.RejectedTaskHandler.HandleRejectedTask(p.id, reason)
	p.handlers.Metrics.RecordTaskRejected(p.id, reason)
}

func (p *PoolExecutor) spawnWorkerLocked(first *WorkItem, core bool) {
	p.workers++
	if p.workers > p.peak {
		p.peak = p.workers
	}
	id := p.nextWorkerID
	p.nextWorkerID++

	p.wg.Add(1)
	go p.workerLoop(id, first, core)
}

// workerLoop is the main loop for each worker
func (p *PoolExecutor) workerLoop(id int, first *WorkItem, core bool) {
	defer p.wg.Done()

	if first != nil {
		p.runItem(id, *first)
	}

	for {
		if item, ok := p.queue.Pop(); ok {
			p.runItem(id, item)
			continue
		}

		if p.waitForWork(core) {
			continue
		}

		p.mu.Lock()
		// Re-check under mu: a submitter holding mu may have queued work after our Pop.
		if !p.queue.IsEmpty() && p.ctx.Err() == nil {
			p.mu.Unlock()
			continue
		}
		p.workers--
		p.mu.Unlock()
		return
	}
}

// waitForWork blocks until new work is signalled (true), or the pool stops or a
// non-core worker's keep-alive expires (false).
func (p *PoolExecutor) waitForWork(core bool) bool {
	p.metricIdle.Add(1)
	defer p.metricIdle.Add(-1)

	if core {
		select {
		case <-p.signal:
			return true
		case <-p.ctx.Done():
			return false
		}
	}

	timer := time.NewTimer(p.cfg.KeepAlive)
	defer timer.Stop()

	select {
	case <-p.signal:
		return true
	case <-p.ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

func (p *PoolExecutor) runItem(workerID int, item WorkItem) {
	p.metricActive.Add(1)
	startedAt := time.Now()
	panicked := false

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.handlers.PanicHandler.HandlePanic(p.ctx, p.id, workerID, r, debug.Stack())
			p.handlers.Metrics.RecordTaskPanic(p.id, r)
		}
		p.metricActive.Add(-1)
		p.inflight.Add(-1)

		finishedAt := time.Now()
		duration := finishedAt.Sub(startedAt)
		p.handlers.Metrics.RecordTaskDuration(p.id, item.Traits.Priority, duration)
		p.history.Add(TaskExecutionRecord{
			Name:       resolveWorkName(item.Work, item.Traits.Category),
			Executor:   p.id,
			WorkerID:   workerID,
			Priority:   item.Traits.Priority,
			QueuedFor:  startedAt.Sub(item.EnqueuedAt),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
		})
	}()

	item.Work(p.ctx)
}

// Shutdown stops accepting work, cancels the context of running work and waits for
// workers to exit. Work still queued is run with the cancelled context on the
// calling goroutine so that its owners observe the shutdown.
func (p *PoolExecutor) Shutdown() {
	p.mu.Lock()
	p.shuttingDown.Store(true)
	p.mu.Unlock()

	p.cancel(ErrExecutorShutdown)
	p.wg.Wait()

	for {
		item, ok := p.queue.Pop()
		if !ok {
			break
		}
		p.runItem(-1, item)
	}
	p.handlers.Logger.Debug("pool stopped", F("pool", p.id))
}

// ShutdownGraceful stops accepting work and waits for queued and running work to
// finish before shutting down. Returns an error if timeout is exceeded first; the
// pool is shut down either way.
func (p *PoolExecutor) ShutdownGraceful(timeout time.Duration) error {
	p.mu.Lock()
	p.shuttingDown.Store(true)
	p.mu.Unlock()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.inflight.Load() == 0 {
			p.Shutdown()
			return nil
		}
		select {
		case <-deadline:
			p.Shutdown()
			return fmt.Errorf("pool %s: graceful shutdown timeout after %v", p.id, timeout)
		case <-ticker.C:
		}
	}
}

// IsRunning returns whether the pool still accepts work
func (p *PoolExecutor) IsRunning() bool {
	return !p.shuttingDown.Load()
}

func (p *PoolExecutor) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

func (p *PoolExecutor) QueuedTaskCount() int {
	return p.queue.Len()
}

func (p *PoolExecutor) ActiveTaskCount() int {
	return int(p.metricActive.Load())
}

// Stats returns a snapshot of the pool state.
func (p *PoolExecutor) Stats() PoolStats {
	p.mu.Lock()
	workers, peak := p.workers, p.peak
	p.mu.Unlock()

	return PoolStats{
		ID:       p.id,
		Workers:  workers,
		Idle:     int(p.metricIdle.Load()),
		CoreSize: p.cfg.CoreSize,
		MaxSize:  p.cfg.MaxSize,
		Queued:   p.queue.Len(),
		Active:   int(p.metricActive.Load()),
		Peak:     peak,
		Rejected: p.rejected.Load(),
		Running:  p.IsRunning(),
	}
}

// RecentTasks returns up to limit execution records, newest first.
func (p *PoolExecutor) RecentTasks(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}

// LastTask returns the most recently finished execution record.
func (p *PoolExecutor) LastTask() (TaskExecutionRecord, bool) {
	return p.history.Last()
}
