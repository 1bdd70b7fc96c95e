package core

import (
	"context"
	"fmt"
	"time"
)

// Executor accepts Runnables for execution off the affinity goroutine.
//
// An executor either accepts work (nil error) or rejects it. Accepted work always
// runs exactly once; after the executor has been shut down it may run with an
// already-cancelled context so that its owner can clean up.
type Executor interface {
	Execute(work Runnable) error
	ExecuteWithTraits(work Runnable, traits TaskTraits) error
}

// =============================================================================
// PoolConfig: bounds of a PoolExecutor
// =============================================================================

const (
	DefaultCorePoolSize    = 5
	DefaultMaximumPoolSize = 128
	DefaultKeepAlive       = time.Second
	DefaultQueueCapacity   = 10
)

// PoolConfig holds the thread-count bounds and admission buffer of a PoolExecutor.
type PoolConfig struct {
	// CoreSize workers are started on demand and never time out.
	CoreSize int
	// MaxSize bounds the total number of workers.
	MaxSize int
	// KeepAlive is how long a non-core worker waits idle before exiting.
	KeepAlive time.Duration
	// QueueCapacity is the backlog above which extra workers are started.
	// Work beyond it is still queued, never dropped.
	QueueCapacity int
	// UsePriority orders the backlog by TaskTraits.Priority instead of FIFO.
	UsePriority bool
	// HistoryCapacity is the number of execution records kept for RecentTasks.
	HistoryCapacity int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		CoreSize:        DefaultCorePoolSize,
		MaxSize:         DefaultMaximumPoolSize,
		KeepAlive:       DefaultKeepAlive,
		QueueCapacity:   DefaultQueueCapacity,
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}

func (c PoolConfig) Validate() error {
	if c.CoreSize < 1 {
		return fmt.Errorf("pool config: core size must be at least 1, got %d", c.CoreSize)
	}
	if c.MaxSize < c.CoreSize {
		return fmt.Errorf("pool config: max size %d is below core size %d", c.MaxSize, c.CoreSize)
	}
	if c.KeepAlive <= 0 {
		return fmt.Errorf("pool config: keep-alive must be positive, got %v", c.KeepAlive)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("pool config: queue capacity must not be negative, got %d", c.QueueCapacity)
	}
	return nil
}

// cancelledContext returns a context that is already done with the given cause.
func cancelledContext(cause error) context.Context {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)
	return ctx
}
