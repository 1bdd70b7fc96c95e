package core

import (
	"context"

	"github.com/google/uuid"
)

// Runnable is the unit of work handed to an Executor (Closure)
type Runnable func(ctx context.Context)

// =============================================================================
// TaskTraits: Define work attributes (priority, display name)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority, the default for background tasks
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: The user will notice if the work is slow
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// The user is waiting on the affinity goroutine for this work to finish.
	TaskPriorityUserBlocking
)

func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

type TaskTraits struct {
	Priority TaskPriority
	// Category names the work in logs, metrics and execution history.
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies an AsyncTask across logs, metrics and history records.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight characters of the ID, for log lines.
func (id TaskID) Short() string {
	return id.String()[:8]
}

func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Status indicates the current status of an AsyncTask. Each status is set
// only once during the lifetime of a task.
type Status int32

const (
	// StatusPending: the task has not been submitted yet
	StatusPending Status = iota
	// StatusRunning: the task has been submitted and its terminal message has not been delivered
	StatusRunning
	// StatusFinished: the terminal callback has been delivered on the affinity goroutine
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// WaitStrategy selects how Await behaves for a cancelled task.
type WaitStrategy int

const (
	// WaitNormal returns ErrCancelled as soon as the task is cancelled.
	WaitNormal WaitStrategy = iota
	// WaitEvenIfCancelled blocks until the worker has really stopped, then
	// returns the zero result with a nil error.
	WaitEvenIfCancelled
)

// =============================================================================
// Context Helper
// =============================================================================
type taskIDKeyType struct{}

var taskIDKey taskIDKeyType

// GetCurrentTaskID returns the ID of the AsyncTask whose body is running with ctx.
func GetCurrentTaskID(ctx context.Context) (TaskID, bool) {
	if v := ctx.Value(taskIDKey); v != nil {
		return v.(TaskID), true
	}
	return TaskID{}, false
}
