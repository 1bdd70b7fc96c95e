package core

import "time"

// TaskExecutionRecord captures one unit of work run by a PoolExecutor worker.
type TaskExecutionRecord struct {
	Name       string
	Executor   string
	WorkerID   int
	Priority   TaskPriority
	QueuedFor  time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// PoolStats represents runtime observability state for a PoolExecutor.
type PoolStats struct {
	ID       string
	Workers  int
	Idle     int
	CoreSize int
	MaxSize  int
	Queued   int
	Active   int
	Peak     int
	Rejected int64
	Running  bool
}

// SerialStats represents runtime observability state for a SerialExecutor.
type SerialStats struct {
	Name      string
	Pending   int
	Active    bool
	Completed int64
	Rejected  int64
}

// DispatchQueueStats represents runtime observability state for a DispatchQueue.
type DispatchQueueStats struct {
	Name       string
	Pending    int
	Dispatched int64
	Panics     int64
	Rejected   int64
	Closed     bool
}
