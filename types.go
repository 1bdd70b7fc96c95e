package rapidtask

import "github.com/Swind/go-rapid-task/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the rapidtask package for most use cases.

// Runnable is the unit of work handed to an Executor (Closure)
type Runnable = core.Runnable

// AsyncTask is the single-shot asynchronous task
type AsyncTask[P, R any] = core.AsyncTask[P, R]

// Body is the computation of an AsyncTask
type Body[P, R any] = core.Body[P, R]

// Runtime groups the dispatch queue and the executors
type Runtime = core.Runtime

// RuntimeConfig configures a Runtime
type RuntimeConfig = core.RuntimeConfig

// Executor accepts work for execution off the affinity goroutine
type Executor = core.Executor

// Dialog is the affinity-side progress UI of a task
type Dialog = core.Dialog

// DialogTransaction batches dialog mutations
type DialogTransaction = core.DialogTransaction

// TaskTraits defines work attributes (priority, display name)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// Status is the lifecycle status of a task
type Status = core.Status

// WaitStrategy selects how Await treats a cancelled task
type WaitStrategy = core.WaitStrategy

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Status constants
const (
	StatusPending  Status = core.StatusPending
	StatusRunning  Status = core.StatusRunning
	StatusFinished Status = core.StatusFinished
)

// Wait strategies
const (
	WaitNormal          WaitStrategy = core.WaitNormal
	WaitEvenIfCancelled WaitStrategy = core.WaitEvenIfCancelled
)

// Errors
var (
	ErrIllegalState      = core.ErrIllegalState
	ErrCancelled         = core.ErrCancelled
	ErrTimeout           = core.ErrTimeout
	ErrExecutorShutdown  = core.ErrExecutorShutdown
	ErrTransactionClosed = core.ErrTransactionClosed
)

// Convenience functions
var (
	DefaultRuntimeConfig = core.DefaultRuntimeConfig
	DefaultPoolConfig    = core.DefaultPoolConfig
	NewRuntime           = core.NewRuntime
	GetCurrentTaskID     = core.GetCurrentTaskID
)
