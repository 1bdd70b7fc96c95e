package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Body is the computation of an AsyncTask. It runs on an executor goroutine, never
// on the affinity goroutine. ctx is cancelled when the task is cancelled with
// interrupt, or when the executor shuts down.
type Body[P, R any] func(ctx context.Context, task *AsyncTask[P, R], params []P) (R, error)

const defaultTaskName = "async_task"

// Outcome labels passed to Metrics.RecordTaskOutcome.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type futureState int32

const (
	futurePending futureState = iota
	futureRunning
	futureCompleted
	futureCancelled
)

// AsyncTask runs a computation off the affinity goroutine and delivers progress and
// exactly one terminal callback (OnSuccess, OnCancelled or OnError) on it, in post
// order. A task may be submitted only once.
//
// Hooks and the dialog factory must be configured before Submit, from the
// submitting goroutine. Progress methods may be called from any goroutine, but are
// meant for the body.
type AsyncTask[P, R any] struct {
	id   TaskID
	rt   *Runtime
	body Body[P, R]

	name          string
	priority      atomic.Int32
	dialogFactory func() Dialog
	onPreStart    func()
	onSuccess     func(R)
	onCancelled   func(R)
	onError       func(error)

	submitted atomic.Bool
	status    atomic.Int32
	cancelled atomic.Bool
	cancelCh  chan struct{}
	state     atomic.Int32 // futureState

	// done is closed once the future is completed or cancelled; result and err
	// are written before that.
	done     chan struct{}
	doneOnce sync.Once
	result   R
	err      error

	// released is the completion latch: closed after the worker's terminal path ran.
	released    chan struct{}
	releaseOnce sync.Once

	interruptMu sync.Mutex
	interrupt   context.CancelCauseFunc

	terminalPosted atomic.Bool
	params         []P
	submittedAt    time.Time

	// dialog is only touched on the submitting goroutine before Submit hands off,
	// and on the affinity goroutine afterwards.
	dialog Dialog
}

// NewAsyncTask creates a pending task bound to rt. Panics if rt or body is nil.
func NewAsyncTask[P, R any](rt *Runtime, body Body[P, R]) *AsyncTask[P, R] {
	if rt == nil {
		panic("AsyncTask: runtime must not be nil")
	}
	if body == nil {
		panic("AsyncTask: body must not be nil")
	}
	t := &AsyncTask[P, R]{
		id:       GenerateTaskID(),
		rt:       rt,
		body:     body,
		name:     defaultTaskName,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	t.priority.Store(int32(TaskPriorityBestEffort))
	return t
}

// =============================================================================
// Configuration (Pending only)
// =============================================================================

func (t *AsyncTask[P, R]) configurable(what string) bool {
	if t.submitted.Load() {
		t.rt.handlers.Logger.Warn("task already submitted, ignoring "+what,
			F("task", t.id.Short()), F("name", t.name), F("status", t.Status()))
		return false
	}
	return true
}

// WithDialogFactory sets the factory that creates the task's Dialog at Submit.
func (t *AsyncTask[P, R]) WithDialogFactory(factory func() Dialog) *AsyncTask[P, R] {
	if t.configurable("dialog factory") {
		t.dialogFactory = factory
	}
	return t
}

// OnPreStart sets the hook run on the submitting goroutine before the body is handed off.
func (t *AsyncTask[P, R]) OnPreStart(fn func()) *AsyncTask[P, R] {
	if t.configurable("pre-start hook") {
		t.onPreStart = fn
	}
	return t
}

func (t *AsyncTask[P, R]) OnSuccess(fn func(result R)) *AsyncTask[P, R] {
	if t.configurable("success hook") {
		t.onSuccess = fn
	}
	return t
}

// OnCancelled receives the body's result if the body ran, or the zero R if it never started.
func (t *AsyncTask[P, R]) OnCancelled(fn func(result R)) *AsyncTask[P, R] {
	if t.configurable("cancelled hook") {
		t.onCancelled = fn
	}
	return t
}

// OnError receives the exact error returned by a failed body, or a *PanicError if
// it panicked. Without this hook the error is escalated as a panic carrying a
// *ComputationError on the affinity goroutine, where the DispatchQueue reports it.
func (t *AsyncTask[P, R]) OnError(fn func(err error)) *AsyncTask[P, R] {
	if t.configurable("error hook") {
		t.onError = fn
	}
	return t
}

// SetName sets the display name used in logs, metrics and execution history.
func (t *AsyncTask[P, R]) SetName(name string) *AsyncTask[P, R] {
	if name != "" && t.configurable("name") {
		t.name = name
	}
	return t
}

// SetPriority sets the priority the body runs with. It has no effect once the task
// has been submitted. Priority orders the backlog only on a pool created with
// PoolConfig.UsePriority; the default runtime pool is FIFO.
func (t *AsyncTask[P, R]) SetPriority(p TaskPriority) *AsyncTask[P, R] {
	if t.configurable("priority change") {
		t.priority.Store(int32(p))
	}
	return t
}

// =============================================================================
// Accessors
// =============================================================================

func (t *AsyncTask[P, R]) ID() TaskID {
	return t.id
}

func (t *AsyncTask[P, R]) Name() string {
	return t.name
}

func (t *AsyncTask[P, R]) Priority() TaskPriority {
	return TaskPriority(t.priority.Load())
}

func (t *AsyncTask[P, R]) Status() Status {
	return Status(t.status.Load())
}

// IsCancelled returns true once Cancel has been called, or the executor shut down
// before the body could start.
func (t *AsyncTask[P, R]) IsCancelled() bool {
	return t.cancelled.Load()
}

// =============================================================================
// Submission
// =============================================================================

// Execute submits the task to the runtime's default executor.
func (t *AsyncTask[P, R]) Execute(params ...P) (*AsyncTask[P, R], error) {
	return t.Submit(t.rt.DefaultExecutor(), params...)
}

// Submit starts the task on exec (the runtime default when nil). The dialog is
// created and the pre-start hook runs on the calling goroutine before the body is
// handed off. Returns a *StateError if the task was already submitted, or the
// executor's error if it rejected the work.
func (t *AsyncTask[P, R]) Submit(exec Executor, params ...P) (*AsyncTask[P, R], error) {
	if !t.submitted.CompareAndSwap(false, true) {
		return t, &StateError{Status: t.settledStatus()}
	}
	if exec == nil {
		exec = t.rt.DefaultExecutor()
	}

	if t.dialogFactory != nil {
		t.dialog = t.dialogFactory()
	}
	if t.onPreStart != nil {
		t.onPreStart()
	}

	t.params = params
	t.submittedAt = time.Now()
	t.status.Store(int32(StatusRunning))

	if t.IsCancelled() {
		t.cancelFuture(false)
		return t, nil
	}

	traits := TaskTraits{Priority: t.Priority(), Category: t.name}
	if err := exec.ExecuteWithTraits(t.run, traits); err != nil {
		t.rejected(err)
		return t, err
	}
	return t, nil
}

// settledStatus reports Running for a task whose Submit is still in progress.
func (t *AsyncTask[P, R]) settledStatus() Status {
	if s := t.Status(); s != StatusPending {
		return s
	}
	return StatusRunning
}

// rejected completes a task whose executor refused the body. No terminal
// callback fires; the error is reported through Submit and Await.
func (t *AsyncTask[P, R]) rejected(err error) {
	t.rt.handlers.Logger.Warn("task rejected by executor",
		F("task", t.id.Short()), F("name", t.name), F("error", err))

	if t.state.CompareAndSwap(int32(futurePending), int32(futureCompleted)) {
		t.err = fmt.Errorf("submit task %s: %w", t.id.Short(), err)
		t.completeFuture()
	}
	t.release()

	if !t.rt.queue.PostFunc(t.finishRejected) {
		// The affinity loop is gone; nothing else can touch the dialog.
		t.finishRejected()
	}
}

func (t *AsyncTask[P, R]) finishRejected() {
	t.dismissDialog()
	t.status.Store(int32(StatusFinished))
}

// run is the worker wrapper handed to the executor.
func (t *AsyncTask[P, R]) run(ctx context.Context) {
	if ctx.Err() != nil {
		// The executor shut down before the body could start.
		t.markCancelled()
		t.cancelFuture(false)
		return
	}

	bodyCtx, interrupt := context.WithCancelCause(context.WithValue(ctx, taskIDKey, t.id))
	defer interrupt(nil)

	t.interruptMu.Lock()
	t.interrupt = interrupt
	t.interruptMu.Unlock()

	if !t.state.CompareAndSwap(int32(futurePending), int32(futureRunning)) {
		// Cancelled before start: the cancel path already posted and released.
		return
	}
	defer t.release()

	// The terminal message is posted before the future completes, so anything a
	// waiter posts after Await returns is dispatched after it.
	result, err := t.invoke(bodyCtx)
	if err != nil {
		if observedCancel(err) && (t.IsCancelled() || ctx.Err() != nil) {
			// The body observed a cancel or an executor shutdown; this is a
			// cancellation, not a failure.
			t.markCancelled()
			var zero R
			t.postResult(zero)
			t.state.CompareAndSwap(int32(futureRunning), int32(futureCancelled))
			t.completeFuture()
			return
		}
		t.postException(err)
		t.complete(result, &ComputationError{TaskID: t.id, Err: err})
		return
	}

	t.postResult(result)
	t.complete(result, nil)
}

func observedCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}

func (t *AsyncTask[P, R]) invoke(ctx context.Context) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.body(ctx, t, t.params)
}

// complete moves the future from running to completed. It is a no-op if the
// future was cancelled meanwhile; Await then reports the cancellation instead.
func (t *AsyncTask[P, R]) complete(result R, err error) {
	if t.state.Load() != int32(futureRunning) {
		return
	}
	t.result, t.err = result, err
	if t.state.CompareAndSwap(int32(futureRunning), int32(futureCompleted)) {
		t.completeFuture()
	}
}

func (t *AsyncTask[P, R]) completeFuture() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *AsyncTask[P, R]) release() {
	t.releaseOnce.Do(func() { close(t.released) })
}

// =============================================================================
// Cancellation
// =============================================================================

func (t *AsyncTask[P, R]) markCancelled() {
	if t.cancelled.CompareAndSwap(false, true) {
		close(t.cancelCh)
	}
}

// Cancel marks the task cancelled. A pending task only records the flag and
// returns true; Submit then skips the body and delivers OnCancelled. A submitted task cancels its future:
// if the body has not started it never will, and OnCancelled receives the zero R;
// if it is running and interrupt is true, its context is cancelled. Returns false
// if the future had already completed or been cancelled. Never blocks.
func (t *AsyncTask[P, R]) Cancel(interrupt bool) bool {
	t.markCancelled()
	// Submit publishes Running before it checks the flag, so one of the two
	// always takes the cancel path.
	if t.Status() == StatusPending {
		return true
	}
	return t.cancelFuture(interrupt)
}

func (t *AsyncTask[P, R]) cancelFuture(interrupt bool) bool {
	for {
		switch s := futureState(t.state.Load()); s {
		case futurePending:
			if t.state.CompareAndSwap(int32(s), int32(futureCancelled)) {
				var zero R
				t.postResult(zero)
				t.completeFuture()
				t.release()
				return true
			}
		case futureRunning:
			if t.state.CompareAndSwap(int32(s), int32(futureCancelled)) {
				t.completeFuture()
				if interrupt {
					t.interruptMu.Lock()
					if t.interrupt != nil {
						t.interrupt(ErrCancelled)
					}
					t.interruptMu.Unlock()
				}
				return true
			}
		default:
			return false
		}
	}
}

// =============================================================================
// Await
// =============================================================================

// Await waits for the result with WaitNormal.
func (t *AsyncTask[P, R]) Await(ctx context.Context) (R, error) {
	return t.AwaitWithStrategy(ctx, WaitNormal)
}

// AwaitWithStrategy blocks until the task settles or ctx is done. It must not be
// called on the affinity goroutine while the task is still running.
func (t *AsyncTask[P, R]) AwaitWithStrategy(ctx context.Context, strategy WaitStrategy) (R, error) {
	var zero R
	if t.IsCancelled() {
		if strategy == WaitNormal {
			return zero, ErrCancelled
		}
		if !t.submitted.Load() {
			// Never submitted: no worker exists to wait for.
			return zero, nil
		}
	}

	select {
	case <-t.done:
	case <-t.cancelCh:
	case <-ctx.Done():
		return zero, &InterruptedError{Err: ctx.Err()}
	}

	if !t.IsCancelled() {
		return t.result, t.err
	}
	if strategy == WaitNormal {
		return zero, ErrCancelled
	}

	select {
	case <-t.released:
		return zero, nil
	case <-ctx.Done():
		return zero, &InterruptedError{Err: ctx.Err()}
	}
}

// AwaitTimeout waits with WaitNormal for at most timeout. ErrTimeout leaves the
// task untouched.
func (t *AsyncTask[P, R]) AwaitTimeout(timeout time.Duration) (R, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := t.AwaitWithStrategy(ctx, WaitNormal)
	var ie *InterruptedError
	if errors.As(err, &ie) && errors.Is(ie.Err, context.DeadlineExceeded) {
		return result, ErrTimeout
	}
	return result, err
}

// =============================================================================
// Progress (worker side)
// =============================================================================

// ReportProgress posts a progress update for the dialog. No-op once cancelled.
func (t *AsyncTask[P, R]) ReportProgress(progress int) {
	t.postField(FieldProgress, progress)
}

// SetStatusMessage posts a dialog message update. No-op once cancelled.
func (t *AsyncTask[P, R]) SetStatusMessage(message string) {
	t.postField(FieldMessage, message)
}

// SetStatusTitle posts a dialog title update. No-op once cancelled.
func (t *AsyncTask[P, R]) SetStatusTitle(title string) {
	t.postField(FieldTitle, title)
}

func (t *AsyncTask[P, R]) postField(field DialogField, value any) {
	if t.IsCancelled() || t.terminalPosted.Load() {
		return
	}
	t.post(&dialogFieldMessage{owner: t, mutation: DialogMutation{Field: field, Value: value}})
}

// RunOnAffinityThread posts fn to the affinity goroutine, in order with the task's
// other messages.
func (t *AsyncTask[P, R]) RunOnAffinityThread(fn func()) bool {
	if fn == nil {
		return false
	}
	return t.post(&runnableMessage{fn: fn})
}

// BeginTransaction returns an empty transaction bound to this task's dialog.
func (t *AsyncTask[P, R]) BeginTransaction() *DialogTransaction {
	return newDialogTransaction(t)
}

// dialogOwner
func (t *AsyncTask[P, R]) currentDialog() Dialog { return t.dialog }
func (t *AsyncTask[P, R]) isCancelled() bool     { return t.IsCancelled() }

func (t *AsyncTask[P, R]) post(msg Message) bool {
	if !t.rt.queue.Post(msg) {
		t.rt.handlers.Logger.Warn("affinity queue closed, dropping task message",
			F("task", t.id.Short()), F("name", t.name), F("kind", msg.Kind()))
		return false
	}
	return true
}

// =============================================================================
// Terminal delivery (affinity side)
// =============================================================================

type resultMessage[P, R any] struct {
	task  *AsyncTask[P, R]
	value R
}

func (m *resultMessage[P, R]) Kind() MessageKind { return MessagePostResult }
func (m *resultMessage[P, R]) Dispatch()         { m.task.finish(m.value) }

type exceptionMessage[P, R any] struct {
	task *AsyncTask[P, R]
	err  error
}

func (m *exceptionMessage[P, R]) Kind() MessageKind { return MessagePostException }
func (m *exceptionMessage[P, R]) Dispatch()         { m.task.finishWithError(m.err) }

func (t *AsyncTask[P, R]) postResult(result R) {
	if t.terminalPosted.CompareAndSwap(false, true) {
		t.post(&resultMessage[P, R]{task: t, value: result})
	}
}

func (t *AsyncTask[P, R]) postException(err error) {
	if t.terminalPosted.CompareAndSwap(false, true) {
		t.post(&exceptionMessage[P, R]{task: t, err: err})
	}
}

func (t *AsyncTask[P, R]) finish(result R) {
	t.dismissDialog()
	defer t.status.Store(int32(StatusFinished))

	if t.IsCancelled() {
		t.recordOutcome(OutcomeCancelled)
		if t.onCancelled != nil {
			t.onCancelled(result)
		}
		return
	}
	t.recordOutcome(OutcomeSuccess)
	if t.onSuccess != nil {
		t.onSuccess(result)
	}
}

func (t *AsyncTask[P, R]) finishWithError(err error) {
	t.dismissDialog()
	t.status.Store(int32(StatusFinished))
	t.recordOutcome(OutcomeError)

	if t.onError == nil {
		panic(&ComputationError{TaskID: t.id, Err: err})
	}
	t.onError(err)
}

func (t *AsyncTask[P, R]) dismissDialog() {
	if t.dialog != nil {
		d := t.dialog
		t.dialog = nil
		d.Dismiss()
	}
}

func (t *AsyncTask[P, R]) recordOutcome(outcome string) {
	t.rt.handlers.Metrics.RecordTaskOutcome(t.name, outcome)
	t.rt.handlers.Logger.Debug("task finished",
		F("task", t.id.Short()), F("name", t.name), F("outcome", outcome),
		F("elapsed", time.Since(t.submittedAt)))
}
