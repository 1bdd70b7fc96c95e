package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState is matched by every *StateError.
	ErrIllegalState = errors.New("illegal task state")

	// ErrCancelled is the cancellation outcome. It is a terminal branch, not a failure,
	// and never reaches OnError.
	ErrCancelled = errors.New("task cancelled")

	// ErrTimeout is returned by AwaitTimeout when the deadline passes first.
	ErrTimeout = errors.New("timed out waiting for task")

	// ErrExecutorShutdown is returned when work is submitted to a stopped executor.
	ErrExecutorShutdown = errors.New("executor is shut down")

	// ErrTransactionClosed is returned by Commit on an already committed transaction.
	ErrTransactionClosed = errors.New("dialog transaction already committed")
)

// StateError reports a Submit on a task that is no longer pending.
type StateError struct {
	Status Status
}

func (e *StateError) Error() string {
	switch e.Status {
	case StatusRunning:
		return "cannot execute task: the task is already running"
	case StatusFinished:
		return "cannot execute task: the task has already been executed (a task can be executed only once)"
	default:
		return fmt.Sprintf("cannot execute task in status %s", e.Status)
	}
}

func (e *StateError) Is(target error) bool {
	return target == ErrIllegalState
}

// ComputationError wraps the error returned (or panic raised) by a task body.
type ComputationError struct {
	TaskID TaskID
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("task %s: error while executing body: %v", e.TaskID.Short(), e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// PanicError is the error produced when a task body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in task body: %v", e.Value)
}

// InterruptedError is returned by Await when the waiting context ends first.
type InterruptedError struct {
	Err error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("interrupted while waiting for task: %v", e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}
